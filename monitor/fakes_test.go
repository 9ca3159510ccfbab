package monitor

import (
	"context"
	"errors"
	"fmt"
)

type fakeFeeds struct {
	entries map[string]Entry
	errs    map[string]error
	calls   int
}

func (f *fakeFeeds) Latest(_ context.Context, url string) (Entry, bool, error) {
	f.calls++
	if err, ok := f.errs[url]; ok {
		return Entry{}, false, err
	}
	e, ok := f.entries[url]
	return e, ok, nil
}

type fakeMetadata struct {
	videos       map[string]LiveStatus
	channels     map[string]ChannelInfo
	channelCalls int
}

func (m *fakeMetadata) VideoStatus(_ context.Context, id string) (LiveStatus, error) {
	s, ok := m.videos[id]
	if !ok {
		return LiveStatus{}, fmt.Errorf("video %s: %w", id, ErrMetadataNotFound)
	}
	return s, nil
}

func (m *fakeMetadata) ChannelInfo(_ context.Context, id string) (ChannelInfo, error) {
	m.channelCalls++
	c, ok := m.channels[id]
	if !ok {
		return ChannelInfo{}, fmt.Errorf("channel %s: %w", id, ErrMetadataNotFound)
	}
	return c, nil
}

type stateKey struct{ channel, video string }

type memState struct {
	data   map[stateKey]VideoState
	writes int
	getErr error
	putErr error
}

func newMemState() *memState { return &memState{data: map[stateKey]VideoState{}} }

func (s *memState) Get(_ context.Context, channelID, videoID string) (VideoState, bool, error) {
	if s.getErr != nil {
		return VideoState{}, false, s.getErr
	}
	v, ok := s.data[stateKey{channelID, videoID}]
	return v, ok, nil
}

func (s *memState) Upsert(_ context.Context, channelID, videoID string, st VideoState) error {
	if s.putErr != nil {
		return s.putErr
	}
	s.writes++
	s.data[stateKey{channelID, videoID}] = st
	return nil
}

type sent struct {
	destination string
	msg         Message
}

type recordingSink struct {
	sent []sent
	err  error
}

func (r *recordingSink) Send(_ context.Context, destination string, msg Message) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sent{destination, msg})
	return nil
}

type fakeConfig struct {
	destination string
	channels    []Channel
	destErr     error
	chanErr     error
}

func (c *fakeConfig) Destination(context.Context, string) (string, error) {
	return c.destination, c.destErr
}

func (c *fakeConfig) Channels(context.Context, string) ([]Channel, error) {
	return c.channels, c.chanErr
}

type fakeRecorder struct{ reports []*Report }

func (r *fakeRecorder) RecordRun(_ context.Context, report *Report) error {
	r.reports = append(r.reports, report)
	return nil
}

var errBoom = errors.New("boom")
