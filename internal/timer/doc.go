// Package timer schedules command sequences.
//
// A Timer holds an ordered list of Actions (device + command). The Scheduler
// polls the Repository for due, enabled timers and sends their actions one
// after another through the dispatcher, pausing delay_ms between actions.
// One-shot timers are removed once fired; interval timers are moved forward
// to their next trigger time.
//
// Timers are stored in the SQLite timers table with the action list as a
// JSON column.
package timer
