package amqpbroker

import (
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromValue_RejectsOtherTypes(t *testing.T) {
	_, err := FromValue("amqp://localhost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "string")

	_, err = FromValue((*amqp.Connection)(nil))
	assert.Error(t, err)
}

func TestConvert(t *testing.T) {
	d := convert(amqp.Delivery{
		Exchange:      "flow.ex",
		RoutingKey:    "transform.out",
		ContentType:   "application/json",
		CorrelationId: "c-1",
		AppId:         "node-red",
		Headers:       amqp.Table{"tenant": "acme"},
		Body:          []byte(`{"payload":1}`),
	})

	assert.Equal(t, "flow.ex", d.Exchange)
	assert.Equal(t, "transform.out", d.RoutingKey)
	assert.Equal(t, "application/json", d.Properties.ContentType)
	assert.Equal(t, "c-1", d.Properties.CorrelationID)
	assert.Equal(t, "node-red", d.Properties.AppID)
	assert.Equal(t, "acme", d.Properties.Headers["tenant"])
	assert.Equal(t, `{"payload":1}`, string(d.Body))
}
