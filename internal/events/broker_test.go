package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type BrokerSuite struct {
	suite.Suite
	broker *Broker
}

func (s *BrokerSuite) SetupTest() {
	s.broker = NewBroker(2)
}

func (s *BrokerSuite) TearDownTest() {
	s.broker.Close()
}

func TestBrokerSuite(t *testing.T) {
	suite.Run(t, new(BrokerSuite))
}

func (s *BrokerSuite) TestDeliversOnlyToOwner() {
	alice, err := s.broker.Subscribe("alice")
	s.Require().NoError(err)
	bob, err := s.broker.Subscribe("bob")
	s.Require().NoError(err)

	s.broker.Publish(context.Background(), Event{Type: TypePhaseCompleted, UserID: "alice", SessionID: "s-1"})

	select {
	case got := <-alice.Events():
		s.Equal("s-1", got.SessionID)
	case <-time.After(time.Second):
		s.Fail("alice did not receive event")
	}

	select {
	case got := <-bob.Events():
		s.Failf("unexpected event", "bob received %+v", got)
	default:
	}
}

func (s *BrokerSuite) TestFanOutToAllSubscriptionsOfUser() {
	first, err := s.broker.Subscribe("alice")
	s.Require().NoError(err)
	second, err := s.broker.Subscribe("alice")
	s.Require().NoError(err)
	s.Equal(2, s.broker.SubscriberCount("alice"))

	delivered := s.broker.Deliver(Event{UserID: "alice"})
	s.Equal(2, delivered)
	s.Len(first.Events(), 1)
	s.Len(second.Events(), 1)
}

func (s *BrokerSuite) TestSlowSubscriberDoesNotBlock() {
	sub, err := s.broker.Subscribe("alice")
	s.Require().NoError(err)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			s.broker.Deliver(Event{UserID: "alice"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		s.Fail("publish blocked on a full subscriber")
	}
	s.Len(sub.Events(), 2)
}

func (s *BrokerSuite) TestUnsubscribeClosesChannel() {
	sub, err := s.broker.Subscribe("alice")
	s.Require().NoError(err)

	s.broker.Unsubscribe(sub)
	s.broker.Unsubscribe(sub)
	s.Zero(s.broker.SubscriberCount("alice"))

	_, open := <-sub.Events()
	s.False(open)
}

func (s *BrokerSuite) TestCloseEndsSubscriptions() {
	sub, err := s.broker.Subscribe("alice")
	s.Require().NoError(err)

	s.broker.Close()
	_, open := <-sub.Events()
	s.False(open)

	_, err = s.broker.Subscribe("alice")
	s.ErrorIs(err, ErrBrokerClosed)
	s.Zero(s.broker.Deliver(Event{UserID: "alice"}))
	s.broker.Unsubscribe(sub)
}

func (s *BrokerSuite) TestConcurrentSubscribePublish() {
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			sub, err := s.broker.Subscribe("alice")
			if err == nil {
				s.broker.Unsubscribe(sub)
			}
		}()
		go func() {
			defer wg.Done()
			s.broker.Deliver(Event{UserID: "alice"})
		}()
	}
	wg.Wait()
	s.Zero(s.broker.SubscriberCount("alice"))
}
