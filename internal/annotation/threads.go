package annotation

import "marginalia/api/internal/store"

// Thread is a root comment with its visible direct replies.
type Thread struct {
	Root    store.Comment
	Replies []store.Comment
}

// GroupThreads arranges the flat list from ListActiveCommentsForHighlight
// into threads, keeping the order of roots and of replies.
func GroupThreads(comments []store.Comment) []Thread {
	threads := make([]Thread, 0)
	index := map[int64]int{}
	for _, c := range comments {
		if c.IsRoot() {
			index[c.ID] = len(threads)
			threads = append(threads, Thread{Root: c})
		}
	}
	for _, c := range comments {
		if c.IsRoot() {
			continue
		}
		if i, ok := index[*c.ParentID]; ok {
			threads[i].Replies = append(threads[i].Replies, c)
		}
	}
	return threads
}
