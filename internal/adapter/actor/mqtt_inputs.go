package actor

import (
	"fmt"
	"time"

	"github.com/berfenger/batteryplan2mqtt/internal/config"
	"github.com/berfenger/batteryplan2mqtt/internal/core/domain"
	"github.com/berfenger/batteryplan2mqtt/internal/mqtt"
)

// InputMessage is a raw payload received on one of the input topics.
type InputMessage struct {
	Topic    string
	Payload  []byte
	Received time.Time
	Retained bool
}

// inputCache keeps the last parsed forecasts and state of charge. PV today
// and tomorrow topics are merged into a single series.
type inputCache struct {
	topics     config.InputsConfig
	prices     []domain.SeriesPoint
	pv         []domain.SeriesPoint
	socPercent *float64
	updatedAt  time.Time
}

func newInputCache(topics config.InputsConfig) *inputCache {
	return &inputCache{topics: topics}
}

func (c *inputCache) topicList() []string {
	return []string{c.topics.PriceTopic, c.topics.PVTodayTopic, c.topics.PVTomorrowTopic, c.topics.SoCTopic}
}

func (c *inputCache) update(msg InputMessage) error {
	switch msg.Topic {
	case "":
		return fmt.Errorf("input message without topic")
	case c.topics.PriceTopic:
		parse := mqtt.ParsePricePayload
		if msg.Retained {
			parse = mqtt.ParseRetainedPricePayload
		}
		points, err := parse(msg.Payload, msg.Received)
		if err != nil {
			return err
		}
		c.prices = points
	case c.topics.PVTodayTopic, c.topics.PVTomorrowTopic:
		points, err := mqtt.ParsePVPayload(msg.Payload)
		if err != nil {
			return err
		}
		c.pv = mqtt.MergeSeries(c.pruned(c.pv, msg.Received), points)
	case c.topics.SoCTopic:
		value, err := mqtt.ParseSoCPayload(msg.Payload)
		if err != nil {
			return err
		}
		c.socPercent = &value
	default:
		return fmt.Errorf("unexpected input topic %s", msg.Topic)
	}
	c.updatedAt = msg.Received
	return nil
}

// pruned drops points older than two days, the PV fallback never looks
// further back than one.
func (c *inputCache) pruned(points []domain.SeriesPoint, now time.Time) []domain.SeriesPoint {
	limit := now.Add(-48 * time.Hour)
	kept := points[:0:0]
	for _, p := range points {
		if p.End().After(limit) {
			kept = append(kept, p)
		}
	}
	return kept
}

func (c *inputCache) response() domain.GetForecastInputsResponse {
	resp := domain.GetForecastInputsResponse{
		Prices:    append([]domain.SeriesPoint(nil), c.prices...),
		PV:        append([]domain.SeriesPoint(nil), c.pv...),
		UpdatedAt: c.updatedAt,
	}
	if c.socPercent != nil {
		soc := *c.socPercent
		resp.SoCPercent = &soc
	}
	return resp
}
