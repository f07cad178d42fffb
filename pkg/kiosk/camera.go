package kiosk

import (
	"fmt"
	"time"

	"github.com/teslashibe/go-checkout/pkg/pipeline"
)

// camera binds the workflow's camera check to a frame pipeline. A new
// pipeline and frame source are created for every AIChecking visit and
// torn down on every exit from it. Both methods run on the loop goroutine.
type camera struct {
	k *Kiosk
}

func (c camera) Start() error {
	k := c.k
	if k.pipe != nil {
		return nil
	}
	src, err := k.vision.Open()
	if err != nil {
		return fmt.Errorf("open frame source: %w", err)
	}

	opts := []pipeline.Option{pipeline.WithLogger(k.logger.With("stage", "pipeline"))}
	if k.metrics != nil {
		opts = append(opts, pipeline.WithRecorder(k.metrics))
	}
	if k.frameSink != nil {
		opts = append(opts, pipeline.WithFrameSink(k.frameSink))
	}
	k.pipe = pipeline.New(k.cfg.Pipeline, src, k.vision.Locator, k.vision.Estimator, opts...)
	k.pipe.Start(time.Now())
	return nil
}

func (c camera) Stop() error {
	k := c.k
	if k.pipe == nil {
		return nil
	}
	p := k.pipe
	k.pipe = nil
	return p.Stop()
}
