// Copyright (c) Microsoft Corporation.
// Licensed under the MIT license.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nats-io/nats.go"

	"github.com/AzureAD/adal-broker-for-go/apps/bridge"
	"github.com/AzureAD/adal-broker-for-go/apps/errors"
	"github.com/AzureAD/adal-broker-for-go/apps/logger"
	"github.com/AzureAD/adal-broker-for-go/apps/manager"
)

// request is the body of a message on the execute subject.
type request struct {
	Action string            `json:"action"`
	Args   []json.RawMessage `json:"args"`
}

// service serves bridge actions over NATS. Requests arrive on <prefix>.execute and
// every reply is published to the request's reply subject, so callers of actions that
// reply more than once (setLogger) subscribe to their own inbox.
type service struct {
	conn   *nats.Conn
	d      *bridge.Dispatcher
	log    *slog.Logger
	prefix string
	queue  string

	// ctx bounds the operations started by requests.
	ctx context.Context

	mu  sync.Mutex
	sub *nats.Subscription
}

func (s *service) executeSubject() string {
	return s.prefix + ".execute"
}

func (s *service) launchSubject() string {
	return s.prefix + ".interaction.launch"
}

func (s *service) start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, err := s.conn.QueueSubscribe(s.executeSubject(), s.queue, s.handle)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", s.executeSubject(), err)
	}
	s.sub = sub
	s.log.Info("NATS subscription created", logger.Tag("service"), slog.String("subject", s.executeSubject()), slog.String("queue", s.queue))
	return nil
}

// stop stops receiving requests and lets the received ones finish.
func (s *service) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub == nil {
		return
	}
	if err := s.sub.Drain(); err != nil {
		s.log.Warn("draining the subscription", logger.Tag("service"), slog.Any("error", err))
	}
	s.sub = nil
}

func (s *service) handle(msg *nats.Msg) {
	if msg.Reply == "" {
		s.log.Warn("request without a reply subject dropped", logger.Tag("service"), slog.String("subject", msg.Subject))
		return
	}
	reply := func(r bridge.Result) {
		data, err := json.Marshal(r)
		if err != nil {
			s.log.Error("encoding reply", logger.Tag("service"), slog.Any("error", err))
			return
		}
		if err := s.conn.Publish(msg.Reply, data); err != nil {
			s.log.Warn("sending reply", logger.Tag("service"), slog.String("reply_subject", msg.Reply), slog.Any("error", err))
		}
	}

	var req request
	if err := json.Unmarshal(msg.Data, &req); err != nil {
		reply(failure(errors.Wrap(errors.KindUnknown, err, "decoding request")))
		return
	}
	s.log.Debug("request received", logger.Tag("service"), slog.String("action", req.Action))

	handled, err := s.d.Execute(s.ctx, req.Action, req.Args, reply)
	switch {
	case err != nil:
		reply(failure(errors.Wrap(errors.KindUnknown, err, req.Action)))
	case !handled:
		reply(failure(errors.New(errors.KindUnknown, "unknown action %q", req.Action)))
	}
}

func failure(err error) bridge.Result {
	return bridge.Result{OK: false, Payload: bridge.ErrorPayload{Kind: errors.KindOf(err).String(), Message: err.Error()}}
}

// natsSurface hands interactive requests to whatever UI host listens on the launch
// subject. The host answers with the completeInteraction action.
type natsSurface struct {
	conn    *nats.Conn
	subject string
}

func (n *natsSurface) Launch(_ context.Context, req manager.LaunchRequest) error {
	data, err := json.Marshal(launchMessage{
		CorrelationID: req.CorrelationID,
		RequestCode:   req.RequestCode,
		URL:           req.URL,
		RedirectURI:   req.RedirectURI,
	})
	if err != nil {
		return err
	}
	return n.conn.Publish(n.subject, data)
}

// launchMessage is published for each interactive request.
type launchMessage struct {
	CorrelationID string `json:"correlationId"`
	RequestCode   int    `json:"requestCode"`
	URL           string `json:"url"`
	RedirectURI   string `json:"redirectUri"`
}
