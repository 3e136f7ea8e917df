// Package conversation owns the single chat session served by oracle-chat.
//
// # Overview
//
// The package sits between the views (web chat, terminal client) and the
// webhook agent. Views never mutate session state. They call Submit and
// DismissNotice, then re-render from Snapshot whenever a Change arrives.
//
//	ctrl := conversation.New(agentClient,
//	    conversation.WithGreeting(cfg.Session.Greeting),
//	    conversation.WithNotifier(notice.New(cfg.Notice.Timeout)),
//	    conversation.WithLogger(logger),
//	)
//	defer ctrl.Close()
//
// # Turns
//
// A Turn is one message, authored by the user or the assistant. The Log keeps
// turns in insertion order, which is also display order. Turns never change
// after they are appended and the log only grows. Every session starts with
// one assistant turn, the greeting, whose id is GreetingID.
//
// # Single flight
//
// At most one agent request is outstanding:
//
//	idle --Submit(text)--> sending --reply--> idle (+ assistant turn)
//	                               --error--> idle (+ notice)
//
// Submit appends the user turn immediately, marks the session busy and clears
// any visible notice. Submit while busy, with blank text, or after Close is a
// no-op that reports false. Because only one call can be in flight, replies
// are committed in the order their questions were asked.
//
// The agent call runs on its own goroutine with a context owned by the
// controller, so the request that triggered it going away does not cancel it.
//
// # Outcomes
//
// A successful reply, including the agent client's fallback text, becomes an
// assistant turn. Any error becomes FailureNotice and adds no turn; the user
// turn stays visible and input is accepted again.
//
// # Change events
//
// Every state change bumps State.Version and publishes a Change through the
// Broadcaster. Publishing never blocks the controller: a subscriber whose
// buffer is full misses the event, and catches up on the next one because
// views always read the full snapshot.
package conversation
