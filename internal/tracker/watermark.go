package tracker

import (
	"sort"

	"ghtrack/internal/github"
)

// issueOrPR reports whether an event is issue or pull request activity,
// the only kinds repo and author tasks notify about.
func issueOrPR(ev github.Event) bool {
	return ev.Type == "IssuesEvent" || ev.Type == "PullRequestEvent"
}

func (m Mode) filter(ev github.Event) bool {
	if m == ModePerson {
		return true
	}
	return issueOrPR(ev)
}

// advance applies one page of feed events (newest first) to a watermark.
//
// On the very first poll the watermark seeds to the newest relevant event
// id and nothing is emitted; history from before the task existed is not
// news. Afterwards every relevant event above the watermark is returned in
// ascending id order and the watermark moves to the highest id seen.
// Events whose id is not a decimal integer are skipped.
func advance(mode Mode, watermark *int64, events []github.Event) (emit []github.Event, next *int64) {
	if watermark == nil {
		for _, ev := range events {
			if !mode.filter(ev) {
				continue
			}
			id, ok := ev.NumericID()
			if !ok {
				continue
			}
			seed := id
			return nil, &seed
		}
		return nil, nil
	}

	type numbered struct {
		id int64
		ev github.Event
	}
	var fresh []numbered
	for _, ev := range events {
		if !mode.filter(ev) {
			continue
		}
		id, ok := ev.NumericID()
		if !ok {
			continue
		}
		if id > *watermark {
			fresh = append(fresh, numbered{id: id, ev: ev})
		}
	}
	if len(fresh) == 0 {
		return nil, watermark
	}

	sort.Slice(fresh, func(i, j int) bool { return fresh[i].id < fresh[j].id })
	emit = make([]github.Event, 0, len(fresh))
	for _, n := range fresh {
		emit = append(emit, n.ev)
	}
	top := fresh[len(fresh)-1].id
	return emit, &top
}
