package metrics

import (
	"fmt"
	"sync"
	"time"
)

// ChunkMetrics tracks timing for the processing of one chunk
type ChunkMetrics struct {
	ChunkNum            int
	StartTime           time.Time
	ConversionEndTime   *time.Time
	conversionDuration  time.Duration
	UploadStartTime     *time.Time
	UploadEndTime       *time.Time
	uploadDuration      time.Duration
	mu                  sync.Mutex
}

// EndConversion marks the end of the container conversion for this chunk
func (m *ChunkMetrics) EndConversion() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.ConversionEndTime = &now
	m.conversionDuration = now.Sub(m.StartTime)
}

// ConversionDuration returns how long close + conversion took
func (m *ChunkMetrics) ConversionDuration() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conversionDuration
}

// StartUpload marks the start of the off-rig upload
func (m *ChunkMetrics) StartUpload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	m.UploadStartTime = &now
}

// EndUpload marks the end of the off-rig upload
func (m *ChunkMetrics) EndUpload() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UploadStartTime != nil {
		now := time.Now()
		m.UploadEndTime = &now
		m.uploadDuration = now.Sub(*m.UploadStartTime)
	}
}

// Summary returns a formatted summary for this chunk
func (m *ChunkMetrics) Summary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fmt.Sprintf("chunk %03d: conversion=%v upload=%v",
		m.ChunkNum, m.conversionDuration, m.uploadDuration)
}

// Collector keeps per-chunk metrics for the lifetime of a session
type Collector struct {
	chunks map[int]*ChunkMetrics
	mu     sync.RWMutex
}

// NewCollector creates an empty metrics collector
func NewCollector() *Collector {
	return &Collector{
		chunks: make(map[int]*ChunkMetrics),
	}
}

// StartChunk begins tracking a chunk and returns its metrics instance
func (c *Collector) StartChunk(chunkNum int) *ChunkMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := &ChunkMetrics{
		ChunkNum:  chunkNum,
		StartTime: time.Now(),
	}
	c.chunks[chunkNum] = m
	return m
}

// GetChunk returns the metrics for a chunk number, or nil
func (c *Collector) GetChunk(chunkNum int) *ChunkMetrics {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chunks[chunkNum]
}

// Summaries returns the formatted summaries of all tracked chunks
func (c *Collector) Summaries() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.chunks))
	for _, m := range c.chunks {
		out = append(out, m.Summary())
	}
	return out
}
