package service

// Package service connects the poll controller to the outer world.
//
// Overview
// JobClient is the HTTP binding of the remote job service:
//   - POST {server}/refresh[?filter=F] returns the job id
//   - GET {server}/results/{id} answers 202 while the job runs and 200 with
//     [[label, value], ...] once it is done
//
// Service builds a JobClient, a poller.Controller and the sinks from
// model.Config and drives them in one of two modes:
//   - manual: submit once, wait for the outcome, publish it and return
//   - timer: submit on start and on every gocron tick, publish every result
//     until the context is cancelled
//
// Data flow:
//
//   Service              Controller            JobClient          Sinks
//      |                     |                     |                 |
//      | Submit() ---------->| Submit() ---------->| POST /refresh   |
//      |                     | Status() ---------->| GET /results/id |
//      |                     |   ... every poll.interval while 202   |
//      |<--- state.Store ----|                     |                 |
//      | publish(result) --------------------------------------------->|
//
// Sinks:
//   - WriterSink renders the result as text bars or JSON, stdout by default
//   - DirSink stores prospect-<timestamp>.xlsx and .json reports into
//     service.dir
//
// With service.history set, every Loading, Idle and Error transition is
// written to the sqlite ledger of internal/history.
//
// Invariants:
//   - Results are published from the Service goroutine only.
//   - A failed sink doesn't stop the others; errors are joined.
//   - Submission failures never change the UI state, in manual mode they
//     end the run.
//
// internal/service/service_test.go shows how to run a Service against the
// fake job service from internal/jobtest.
