// Package conversation implements the conversation manager: per-conversation
// state (participants, transcript, routing context) and the decision of which
// agent handles the next message. Message processing within one conversation
// is serialized to keep the transcript consistent; distinct conversations
// proceed independently. Idle conversations are closed by a periodic sweeper.
package conversation
