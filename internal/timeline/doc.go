// Package timeline interleaves a conversation's messages with research-card
// batches. Merge is a pure function; callers recompute it whenever messages
// are appended or a batch arrives.
package timeline
