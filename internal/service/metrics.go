package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var pipelineExits = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chatwarden_pipeline_exits_total",
	Help: "Inbound messages by the pipeline stage that ended their run",
}, []string{"stage"})

var rejectedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chatwarden_rejected_events_total",
	Help: "Raw events the normalizer produced no context for",
}, []string{"reason"})

var handlerFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chatwarden_handler_failures_total",
	Help: "Errors and panics caught at the pipeline boundary",
}, []string{"stage"})

var aiCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chatwarden_ai_calls_total",
	Help: "Generative replies by outcome",
}, []string{"outcome"})

var warningsIssued = promauto.NewCounter(prometheus.CounterOpts{
	Name: "chatwarden_warnings_issued_total",
	Help: "Blocked-content warnings issued",
})

var removals = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chatwarden_removals_total",
	Help: "Participant removal attempts by reason and result",
}, []string{"reason", "result"})

var vaultEntries = promauto.NewGauge(prometheus.GaugeOpts{
	Name: "chatwarden_vault_entries",
	Help: "View-once captures currently held",
})

var commandsRun = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chatwarden_commands_total",
	Help: "Command invocations by command and result",
}, []string{"cmd", "result"})

var cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chatwarden_cache_lookups_total",
	Help: "Response cache lookups by result",
}, []string{"result"})
