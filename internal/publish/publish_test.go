package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/rs/zerolog"
	"github.com/streadway/amqp"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/facecascade/internal/boost"
	"github.com/ayusman/facecascade/internal/cascade"
)

type published struct {
	exchange, key string
	msg           amqp.Publishing
}

type channelMock struct {
	fail bool
	sent []published
}

func (c *channelMock) Publish(exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if c.fail {
		return errors.New("channel closed")
	}
	c.sent = append(c.sent, published{exchange: exchange, key: key, msg: msg})
	return nil
}

func TestAMQPNotifier_PublishesJSON(t *testing.T) {
	ch := &channelMock{}
	n := &AMQPNotifier{exchange: "facecascade", channel: ch}
	ctx := context.Background()

	require.NoError(t, n.LayerCompleted(ctx, LayerEvent{RunID: "r1", Layer: 2, Tweak: -0.01}))
	require.NoError(t, n.TrainingFinished(ctx, RunEvent{RunID: "r1", Layers: 3, GoalReached: true}))

	require.Len(t, ch.sent, 2)
	require.Equal(t, "facecascade", ch.sent[0].exchange)
	require.Equal(t, LayerRoutingKey, ch.sent[0].key)
	require.Equal(t, RunRoutingKey, ch.sent[1].key)
	require.Equal(t, "application/json", ch.sent[0].msg.ContentType)

	var got LayerEvent
	require.NoError(t, json.Unmarshal(ch.sent[0].msg.Body, &got))
	require.Equal(t, 2, got.Layer)
	require.Equal(t, -0.01, got.Tweak)
}

func TestMulti_CallsEveryNotifier(t *testing.T) {
	failing := &AMQPNotifier{channel: &channelMock{fail: true}}
	working := &channelMock{}
	m := Multi{failing, LogNotifier{Log: zerolog.Nop()}, &AMQPNotifier{channel: working}}

	err := m.LayerCompleted(context.Background(), LayerEvent{RunID: "r"})
	require.Error(t, err)
	require.Len(t, working.sent, 1)

	require.NoError(t, Multi{LogNotifier{Log: zerolog.Nop()}}.TrainingFinished(context.Background(), RunEvent{}))
}

type uploaderMock struct {
	input *s3manager.UploadInput
	body  []byte
}

func (u *uploaderMock) UploadWithContext(_ aws.Context, in *s3manager.UploadInput, _ ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error) {
	u.input = in
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	u.body = body
	return &s3manager.UploadOutput{Location: "s3://" + *in.Bucket + "/" + *in.Key}, nil
}

func TestS3Exporter_Export(t *testing.T) {
	up := &uploaderMock{}
	e := &S3Exporter{bucket: "models", prefix: "cascades", uploader: up, log: zerolog.Nop()}

	c := &cascade.Cascade{Width: 19, Height: 19, Layers: []cascade.Layer{{
		Rules: []boost.StumpRule{{FeatureIndex: 3, Threshold: 1.5, Toggle: -1, Error: 0.2}},
		Tweak: 0.1,
	}}}

	loc, err := e.Export(context.Background(), "run-1", c)
	require.NoError(t, err)
	require.Equal(t, "s3://models/cascades/run-1.json", loc)
	require.Equal(t, "application/json", *up.input.ContentType)

	var got cascade.Cascade
	require.NoError(t, json.NewDecoder(bytes.NewReader(up.body)).Decode(&got))
	require.Equal(t, *c, got)
}
