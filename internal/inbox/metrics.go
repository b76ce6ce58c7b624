package inbox

import (
	"github.com/wolfeidau/switchboard/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

func metricChannel(ch models.Channel) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("channel", string(ch)))
}
