package nats_test

import (
	"errors"
	"testing"
	"time"

	"github.com/next-trace/scg-signal-bus/adapters/nats"
	serr "github.com/next-trace/scg-signal-bus/contract/errors"
)

func TestNewWithNATS_ConnectErrors(t *testing.T) {
	cases := map[string]nats.Config{
		"empty url":   {},
		"unreachable": {URL: "nats://127.0.0.1:1", Name: "signald-test", ConnTimeout: 50 * time.Millisecond},
		"bad scheme":  {URL: "://not-a-url", SubjectPrefix: "qa."},
	}

	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			ad, cleanup, err := nats.NewWithNATS(cfg)
			if !errors.Is(err, serr.ErrPublishFailed) {
				t.Fatalf("want ErrPublishFailed, got %v", err)
			}

			if ad != nil || cleanup != nil {
				t.Fatalf("no adapter expected on failure")
			}
		})
	}
}
