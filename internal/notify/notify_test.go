package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Announce(ctx context.Context, scopeID, text string) error {
	return m.Called(ctx, scopeID, text).Error(0)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFanoutTriesEveryTarget(t *testing.T) {
	first := &mockNotifier{}
	second := &mockNotifier{}
	first.On("Announce", mock.Anything, "C1", "hello").Return(errors.New("down")).Once()
	second.On("Announce", mock.Anything, "C1", "hello").Return(nil).Once()

	f := NewFanout(first, nil, second)
	require.Equal(t, 2, f.Len())

	err := f.Announce(context.Background(), "C1", "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "down")
	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

func TestFanoutSucceedsWhenAllSucceed(t *testing.T) {
	f := NewFanout(NewLogNotifier(discardLogger()))
	require.NoError(t, f.Announce(context.Background(), "C1", "hello"))
}

func TestKafkaNotifierPublishesKeyedMessage(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var a Announcement
		if err := json.Unmarshal(val, &a); err != nil {
			return err
		}
		if a.ScopeID != "C1" || a.Text != "new season" {
			return errors.New("unexpected announcement payload")
		}
		return nil
	})

	n := NewKafkaNotifierWithProducer(producer, "spotbot-announcements", discardLogger())
	require.NoError(t, n.Announce(context.Background(), "C1", "new season"))
	require.NoError(t, n.Close())
}

func TestKafkaNotifierReportsProducerFailure(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	n := NewKafkaNotifierWithProducer(producer, "spotbot-announcements", discardLogger())
	err := n.Announce(context.Background(), "C1", "new season")
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, n.Close())
}
