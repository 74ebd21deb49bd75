package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/lucasjlepore/trainload"
)

type stubWriter struct {
	mu     sync.Mutex
	err    error
	topic  string
	msgs   []kafka.Message
	closed bool
}

func (s *stubWriter) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.topic = topic
	s.msgs = append(s.msgs, msgs...)
	return nil
}

func (s *stubWriter) Close() error {
	s.closed = true
	return nil
}

func TestKafkaPublisherEncodesEvents(t *testing.T) {
	w := &stubWriter{}
	p := newKafkaPublisher(w, "trainload.events")

	tss := 88.5
	start := time.Date(2025, 7, 2, 16, 9, 37, 0, time.UTC)
	workout := &trainload.ProcessedWorkout{
		AthleteID:   "demo_athlete",
		ActivityID:  "1001",
		WorkoutType: trainload.SportBike,
		StartTime:   &start,
		TSS:         &tss,
	}
	workout.ZoneAnalysis.Source = trainload.ZoneSourceFallback
	load := trainload.DailyTrainingLoad{AthleteID: "demo_athlete", Date: trainload.Day(start), CTL: 12.5, ATL: 30, TSB: -17.5}

	require.NoError(t, p.Publish(context.Background(), NewWorkoutProcessed("run-1", workout), NewDailyLoadUpdated(load)))
	require.Equal(t, "trainload.events", w.topic)
	require.Len(t, w.msgs, 2)

	first := w.msgs[0]
	require.Equal(t, "demo_athlete", string(first.Key))
	require.Equal(t, []kafka.Header{{Key: "event_type", Value: []byte(TypeWorkoutProcessed)}}, first.Headers)
	var got WorkoutProcessed
	require.NoError(t, json.Unmarshal(first.Value, &got))
	require.Equal(t, "1001", got.ActivityID)
	require.Equal(t, "run-1", got.RunID)
	require.Equal(t, "fallback", got.ZoneSource)
	require.Equal(t, 88.5, *got.TSS)
	require.NotEmpty(t, got.EventID)

	var daily DailyLoadUpdated
	require.NoError(t, json.Unmarshal(w.msgs[1].Value, &daily))
	require.Equal(t, "2025-07-02", daily.Date)
	require.Equal(t, -17.5, daily.TSB)

	require.NoError(t, p.Close())
	require.True(t, w.closed)
}

func TestKafkaPublisherWrapsWriteErrors(t *testing.T) {
	boom := errors.New("broker down")
	p := newKafkaPublisher(&stubWriter{err: boom}, "t")
	err := p.Publish(context.Background(), DailyLoadUpdated{AthleteID: "a"})
	require.ErrorIs(t, err, boom)

	require.NoError(t, p.Publish(context.Background()), "no events is a no-op")
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	require.NoError(t, p.Publish(context.Background(), DailyLoadUpdated{}))
	require.NoError(t, p.Close())
}
