package poller

// Package poller drives the lifecycle of remote jobs: submit, check status
// until the job is done, publish the outcome to the UI state.
//
// Overview
// The Controller owns an event loop. Clients call Submit, the controller asks
// the Remote to start a job and opens a poll cycle for the returned handle.
// The first status check is issued immediately, every next one only after the
// previous response said the job is pending, delayed by the poll interval.
//
// Data flow:
//
//   Controller            Remote                 state.Store
//       |                    |                       |
//   Submit() -> launch ----->| Submit()              |
//       |<----- JobHandle ---|                       |
//       | retire old cycle   |                       |
//       | open cycle{gen} ---------------------------> BeginLoading
//       | poll ------------->| Status()              |
//       |<----- pending -----|                       |
//       | Scheduler.After(interval)                  |
//       | poll ------------->| Status()              |
//       |<----- complete ----|                       |
//       | -------------------------------------------> Complete
//
// Invariants:
//   - At most one cycle is live. A successful submission retires the previous
//     one and cancels its scheduled retry.
//   - At most one status check per cycle is in flight.
//   - Responses and retries carry the generation of their cycle and are
//     ignored unless it is the live one.
//   - Submission responses carry the sequence number of their request and
//     are ignored once a newer request was sent, so a slow old job never
//     replaces a newer one.
//   - Completed and failed cycles never poll again.
//   - A failed submission is logged and reported to the SubmitErrorFunc only,
//     the UI state is left as is.
//   - Polling has no deadline, a job pending forever is polled forever.
//
// All state transitions run in the Do goroutine; remote calls run in helper
// goroutines which Do waits for before it returns.
