package query

import (
	"context"

	"github.com/sirupsen/logrus"
)

// pageResult is one entry of the fetch queue: a page or the error that
// ended fetching.
type pageResult struct {
	page *Page
	err  error
}

// startFetchLocked launches the background request for the pending token
// when nothing is in flight and the queue has room. s.mu must be held.
func (s *Session) startFetchLocked() {
	if s.closing || s.inFlight || s.pending == nil || len(s.queue) >= s.depth {
		return
	}
	token := s.pending
	s.pending = nil
	s.inFlight = true
	s.async = true
	s.stats.FetchersStarted++
	pageNo := s.stats.PagesReceived + 1
	s.wg.Add(1)
	go s.fetch(token, pageNo)
}

func (s *Session) fetch(token *string, pageNo int64) {
	defer s.wg.Done()
	log := s.log.WithField("page", pageNo)
	log.Debug("fetching page")

	page, err := s.request(s.ctx, token)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inFlight = false
	if s.closing {
		s.stats.PagesDiscarded++
		log.Debug("session closing, page discarded")
		return
	}
	if err != nil {
		log.WithError(err).Warn("page request failed")
		s.queue = append(s.queue, pageResult{err: err})
		s.cond.Broadcast()
		return
	}
	s.stats.PagesReceived++
	log.WithFields(logrus.Fields{
		"rows": len(page.Rows),
		"more": page.HasNext(),
	}).Debug("page received")
	s.queue = append(s.queue, pageResult{page: page})
	if page.HasNext() {
		s.pending = page.NextToken
	}
	s.cond.Broadcast()
	s.startFetchLocked()
}

// request performs one transport round trip. Only the first request of a
// session carries the client token.
func (s *Session) request(ctx context.Context, token *string) (*Page, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	req := Request{SQL: s.sql, NextToken: token, MaxRows: s.maxRows}
	if token == nil {
		req.ClientToken = s.clientToken
	}
	page, err := s.transport.ExecutePage(ctx, req)
	if err != nil {
		return nil, err
	}
	if page == nil {
		page = &Page{}
	}
	return page, nil
}
