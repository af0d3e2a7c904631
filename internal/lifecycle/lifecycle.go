// Package lifecycle is the single source of truth for topic status transitions.
//
// Every stage executor asks Next for the status it is about to commit and
// commits it with the returned expected-from set, so a concurrent stage that
// moved the topic first makes the commit fail instead of rewinding status.
package lifecycle

import (
	"sort"

	"github.com/newsroom-engine/internal/apperr"
	"github.com/newsroom-engine/internal/models"
)

// Action is something that moves a topic between statuses
type Action string

const (
	ActionApprove       Action = "approve"
	ActionStartCollect  Action = "start_collect"
	ActionCollect       Action = "collect"
	ActionDraft         Action = "draft"
	ActionCategorize    Action = "categorize"
	ActionReview        Action = "review"
	ActionPublish       Action = "publish"
	ActionDisapprove    Action = "disapprove"
	ActionMarkDuplicate Action = "mark_duplicate"
	ActionCollectFailed Action = "collect_failed"
	ActionDraftFailed   Action = "draft_failed"
)

type key struct {
	from   models.TopicStatus
	action Action
}

const (
	statusNew         = models.TopicStatusNew
	statusApproved    = models.TopicStatusApproved
	statusProcessing  = models.TopicStatusProcessing
	statusCollected   = models.TopicStatusCollected
	statusDrafted     = models.TopicStatusDrafted
	statusAssigned    = models.TopicStatusAssigned
	statusReady       = models.TopicStatusReady
	statusPublished   = models.TopicStatusPublished
	statusDisapproved = models.TopicStatusDisapproved
	statusDuplicate   = models.TopicStatusDuplicate
)

// transitions maps (from, action) to the resulting status. Re-running a stage on a
// topic already past it keeps the later status.
var transitions = map[key]models.TopicStatus{
	{statusNew, ActionApprove}:        statusApproved,
	{statusApproved, ActionApprove}:   statusApproved,
	{statusProcessing, ActionApprove}: statusProcessing,
	{statusCollected, ActionApprove}:  statusCollected,
	{statusDrafted, ActionApprove}:    statusDrafted,
	{statusAssigned, ActionApprove}:   statusAssigned,
	{statusReady, ActionApprove}:      statusReady,
	{statusPublished, ActionApprove}:  statusPublished,

	{statusApproved, ActionStartCollect}:   statusProcessing,
	{statusProcessing, ActionStartCollect}: statusProcessing,

	{statusProcessing, ActionCollect}: statusCollected,
	{statusCollected, ActionCollect}:  statusCollected,
	{statusDrafted, ActionCollect}:    statusDrafted,
	{statusAssigned, ActionCollect}:   statusAssigned,
	{statusReady, ActionCollect}:      statusReady,
	{statusPublished, ActionCollect}:  statusPublished,

	{statusCollected, ActionDraft}: statusDrafted,
	{statusDrafted, ActionDraft}:   statusDrafted,
	{statusAssigned, ActionDraft}:  statusAssigned,
	{statusReady, ActionDraft}:     statusReady,
	{statusPublished, ActionDraft}: statusPublished,

	// Categorizing before Draft stores the category but cannot skip the draft
	{statusCollected, ActionCategorize}: statusCollected,
	{statusDrafted, ActionCategorize}:   statusAssigned,
	{statusAssigned, ActionCategorize}:  statusAssigned,
	{statusReady, ActionCategorize}:     statusReady,
	{statusPublished, ActionCategorize}: statusPublished,

	{statusDrafted, ActionReview}:   statusReady,
	{statusAssigned, ActionReview}:  statusReady,
	{statusReady, ActionReview}:     statusReady,
	{statusPublished, ActionReview}: statusPublished,

	{statusReady, ActionPublish}:     statusPublished,
	{statusPublished, ActionPublish}: statusPublished,

	{statusProcessing, ActionCollectFailed}: statusApproved,
	{statusCollected, ActionDraftFailed}:    statusApproved,
}

func init() {
	// The escape hatches are reachable from every status that is neither terminal nor published.
	for _, s := range []models.TopicStatus{
		statusNew, statusApproved, statusProcessing, statusCollected,
		statusDrafted, statusAssigned, statusReady,
	} {
		transitions[key{s, ActionDisapprove}] = statusDisapproved
		transitions[key{s, ActionMarkDuplicate}] = statusDuplicate
	}
}

// ranks orders statuses for gating. DRAFTED and ASSIGNED share a rank, as do
// APPROVED and PROCESSING.
var ranks = map[models.TopicStatus]int{
	statusNew:        0,
	statusApproved:   1,
	statusProcessing: 1,
	statusCollected:  2,
	statusDrafted:    3,
	statusAssigned:   3,
	statusReady:      4,
	statusPublished:  5,
}

// stageTargets is the status each stage executor aims for
var stageTargets = map[Action]models.TopicStatus{
	ActionApprove:    statusApproved,
	ActionCollect:    statusCollected,
	ActionDraft:      statusDrafted,
	ActionCategorize: statusAssigned,
	ActionReview:     statusReady,
	ActionPublish:    statusPublished,
}

// Rank returns the gating rank of s, or -1 for terminal or unknown statuses
func Rank(s models.TopicStatus) int {
	r, ok := ranks[s]
	if !ok {
		return -1
	}
	return r
}

// IsTerminal reports the escape-hatch statuses
func IsTerminal(s models.TopicStatus) bool {
	return s == statusDisapproved || s == statusDuplicate
}

// NeedsCollectRetry reports a topic left mid-collect by a crash
func NeedsCollectRetry(s models.TopicStatus) bool {
	return s == statusProcessing
}

// Target returns the status a stage aims for
func Target(action Action) (models.TopicStatus, bool) {
	s, ok := stageTargets[action]
	return s, ok
}

// CanRun applies the gating rule: a stage may run when the topic's rank is at
// least the stage's target rank minus one.
func CanRun(current models.TopicStatus, stage Action) bool {
	target, ok := stageTargets[stage]
	if !ok || IsTerminal(current) {
		return false
	}
	r := Rank(current)
	return r >= 0 && r >= Rank(target)-1
}

// Gate returns a gating error when stage may not run from current
func Gate(current models.TopicStatus, stage Action) error {
	if CanRun(current, stage) {
		return nil
	}
	return apperr.Gating(string(stage), string(current), string(requiredStatus(stage)))
}

// Next returns the status that results from applying action to current
func Next(current models.TopicStatus, action Action) (models.TopicStatus, error) {
	to, ok := transitions[key{current, action}]
	if !ok {
		if _, isStage := stageTargets[action]; isStage {
			return "", apperr.Gating(string(action), string(current), string(requiredStatus(action)))
		}
		return "", apperr.Validation("cannot %s a topic in status %s", action, current)
	}
	return to, nil
}

// From lists every status action may be applied to, sorted for stable queries
func From(action Action) []models.TopicStatus {
	var out []models.TopicStatus
	for k := range transitions {
		if k.action == action {
			out = append(out, k.from)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// requiredStatus names the lowest status a stage accepts, for error messages
func requiredStatus(stage Action) models.TopicStatus {
	target, ok := stageTargets[stage]
	if !ok {
		return ""
	}
	need := Rank(target) - 1
	for _, s := range models.AllTopicStatuses {
		if r, ok := ranks[s]; ok && r == need {
			return s
		}
	}
	return target
}
