package rapport

import (
	"regexp"

	"github.com/neo/rapport_backend/internal/types"
)

// SignalRule is one communicative technique. A rule fires when any of its
// patterns matches, and contributes Points once per message no matter how
// many of its patterns match.
type SignalRule struct {
	Label    string
	Polarity types.Polarity
	Points   int
	Patterns []*regexp.Regexp
}

// Match reports whether any pattern of the rule matches message
func (r SignalRule) Match(message string) bool {
	for _, p := range r.Patterns {
		if p.MatchString(message) {
			return true
		}
	}
	return false
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// Category labels. Tuning files refer to categories by these names.
const (
	LabelOpenQuestion         = "Open Question"
	LabelAffirmation          = "Affirmation"
	LabelReflectiveListening  = "Reflective Listening"
	LabelSummary              = "Summary"
	LabelEmpathy              = "Empathy"
	LabelValidation           = "Validation"
	LabelSupport              = "Support"
	LabelExploringAmbivalence = "Exploring Ambivalence"

	LabelAggressive        = "Aggressive/Confrontational"
	LabelDismissive        = "Dismissive"
	LabelAccusatory        = "Accusatory"
	LabelDemanding         = "Demanding"
	LabelMinimizing        = "Minimizing"
	LabelUnsolicitedAdvice = "Unsolicited Advice"
)

var defaultRules = []SignalRule{
	// Trust builders
	{
		Label:    LabelOpenQuestion,
		Polarity: types.PolarityBuildsTrust,
		Points:   2,
		Patterns: patterns(
			`\bhow do you feel\b`,
			`\bwhat'?s been going on\b`,
			`\btell me (about|more)\b`,
			`\bcan you help me understand\b`,
			`\bwhat'?s (that|it) like for you\b`,
			`\bwalk me through\b`,
			`\bdescribe\b`,
			`\bexplain to me\b`,
			`\bhelp me understand\b`,
			`\bwhat are your thoughts\b`,
			`\bwhat do you think about\b`,
			`\bhow would you describe\b`,
			`\bwhat does .+ mean to you\b`,
			`\bwhat'?s your experience\b`,
			`\btell me what\b`,
		),
	},
	{
		Label:    LabelAffirmation,
		Polarity: types.PolarityBuildsTrust,
		Points:   3,
		Patterns: patterns(
			`\bthat takes (courage|strength|bravery)\b`,
			`\bi appreciate (you|your|that you)\b`,
			`\byou'?re being really honest\b`,
			`\bthat'?s insightful\b`,
			`\byou'?re thinking carefully\b`,
			`\bi respect that\b`,
			`\bthat'?s brave\b`,
			`\bi admire\b`,
			`\byou'?re doing (great|well)\b`,
			`\bthat shows strength\b`,
			`\bi recognize\b`,
			`\byou have (courage|strength|insight)\b`,
		),
	},
	{
		Label:    LabelReflectiveListening,
		Polarity: types.PolarityBuildsTrust,
		Points:   3,
		Patterns: patterns(
			`\bso you'?re saying\b`,
			`\bi notice\b`,
			`\bit sounds like\b`,
			`\bwhat i'?m hearing is\b`,
			// "you feel" as a statement, not "do you feel" as a question
			`(^|[.,;!?]\s*|\b(so|and|because|when|that|like) )you feel\b`,
			`\bseems like you'?re\b`,
			`\bi sense that\b`,
			`\bif i understand (correctly|right)\b`,
			`\byou'?re feeling\b`,
			`\bit seems (like|that)\b`,
			`\byou mentioned\b`,
			`\byou'?re experiencing\b`,
			`\bfrom what you'?re saying\b`,
			`\byou seem\b`,
		),
	},
	{
		Label:    LabelSummary,
		Polarity: types.PolarityBuildsTrust,
		Points:   4,
		Patterns: patterns(
			`\blet me make sure i\b`,
			`\bit sounds like\b`,
			`\bso far you'?ve (mentioned|told me|said)\b`,
			`\bputting (it|this) together\b`,
			`\bfrom what you'?ve told me\b`,
			`\bto summarize\b`,
			`\bif i could recap\b`,
			`\blooking at everything\b`,
			`\bfrom our conversation\b`,
			`\byou'?ve shared that\b`,
			`\btaking (stock|account) of\b`,
			`\bcollecting what you'?ve said\b`,
		),
	},
	{
		Label:    LabelEmpathy,
		Polarity: types.PolarityBuildsTrust,
		Points:   3,
		Patterns: patterns(
			`\bi understand\b`,
			`\bwow!`,
			`\bthat sounds like a lot\b`,
			`\bsounds like you'?ve been going through a lot\b`,
			`\bthat must be\b`,
			`\bi hear you\b`,
			`\bi'?m sorry\b`,
			`\bthat'?s really hard\b`,
			`\bcan'?t imagine\b`,
			`\bthat sounds (painful|difficult|overwhelming)\b`,
			`\bi can only imagine\b`,
			`\bmust be tough\b`,
		),
	},
	{
		Label:    LabelValidation,
		Polarity: types.PolarityBuildsTrust,
		Points:   2,
		Patterns: patterns(
			`\bmakes (perfect )?sense\b`,
			`\bi can see why\b`,
			`\bthat'?s understandable\b`,
			`\bsounds (difficult|hard|tough|challenging|complicated)\b`,
			`\bi bet you feel\b`,
			`\bi get it\b`,
			`\byour feelings are valid\b`,
			`\bit'?s (normal|natural|reasonable) to feel\b`,
			`\byou have (every|a) right to feel\b`,
		),
	},
	{
		Label:    LabelSupport,
		Polarity: types.PolarityBuildsTrust,
		Points:   2,
		Patterns: patterns(
			`\bi'?m here to help\b`,
			`\bwe can work through\b`,
			`\byou'?re not alone\b`,
			`\bi want to support you\b`,
			`\blet'?s figure this out together\b`,
			`\bi'?m here for you\b`,
			`\bwe'?ll work on this together\b`,
			`\bi'?d like to help\b`,
			`\byou don'?t have to (do this|go through this) alone\b`,
			`\blet'?s navigate the next steps\b`,
			`\bwho else would you feel comfortable sharing with\b`,
			`\bwhat else can i do\b`,
			`\bwhat do you need\b`,
		),
	},
	{
		Label:    LabelExploringAmbivalence,
		Polarity: types.PolarityBuildsTrust,
		Points:   3,
		Patterns: patterns(
			`\bwhat concerns you about\b`,
			`\bwhat might be different if\b`,
			`\bpart of you wants\b`,
			`\bon one hand.+on the other\b`,
			`\bwhat are the (pros and cons|benefits and drawbacks)\b`,
			`\bwhat (worries|concerns) you\b`,
			`\bwhat holds you back\b`,
			`\btorn between\b`,
			`\bmixed feelings\b`,
			`\bsounds confusing\.? help me understand\b`,
			`\btell me about your different feelings\b`,
			`\bwhat are the complications of\b`,
		),
	},

	// Trust damagers
	{
		Label:    LabelAggressive,
		Polarity: types.PolarityDamagesTrust,
		Points:   -7,
		Patterns: patterns(
			`\bjust tell me\b`,
			`\byou (need|have) to\b`,
			`\byou must\b`,
			`\bstop lying\b`,
			`\bbe honest with me\b`,
			`\bi don'?t believe you\b`,
			`\bdon'?t (lie|bs|bullshit)\b`,
			`\bstop (playing|messing)\b`,
			`\bcut the crap\b`,
			`\benough (games|lies)\b`,
			`\bif you don'?t .+,? i will\b`,
			`\bthat'?s not what .+ (said|told me|told us)\b`,
			`\b(this|you) needs? to stop\b`,
		),
	},
	{
		Label:    LabelDismissive,
		Polarity: types.PolarityDamagesTrust,
		Points:   -6,
		Patterns: patterns(
			`\bwhatever\b`,
			`\bi don'?t care\b`,
			`\bdoesn'?t matter\b`,
			`\bso what\b`,
			`\bget over it\b`,
			`\bthat'?s not important\b`,
			`\bwho cares\b`,
			`\bnot a big deal\b`,
			`\bnot my problem\b`,
			`\bit seems like you'?re avoiding\b`,
			`\bstop wasting (our|my) time\b`,
		),
	},
	{
		Label:    LabelAccusatory,
		Polarity: types.PolarityDamagesTrust,
		Points:   -8,
		Patterns: patterns(
			`\byou'?re lying\b`,
			`\bi know you did\b`,
			`\badmit it\b`,
			`\bconfess\b`,
			`\byou'?re hiding something\b`,
			`\bstop playing games\b`,
			`\bi don'?t trust you\b`,
			`\byou did it\b`,
			`\byou'?re (guilty|responsible)\b`,
			`\bjust admit\b`,
		),
	},
	{
		Label:    LabelDemanding,
		Polarity: types.PolarityDamagesTrust,
		Points:   -6,
		Patterns: patterns(
			`\banswer me\b`,
			`\bimmediately\b`,
			`\bhurry up\b`,
			`\btell me now\b`,
			`\bi demand\b`,
			`\byou better\b`,
			`\bdo it now\b`,
			`\bthis instant\b`,
		),
	},
	{
		Label:    LabelMinimizing,
		Polarity: types.PolarityDamagesTrust,
		Points:   -5,
		Patterns: patterns(
			`\bit'?s not that bad\b`,
			`\boverreacting\b`,
			`\bbeing dramatic\b`,
			`\bjust a phase\b`,
			`\beveryone goes through this\b`,
			`\bcould be worse\b`,
			`\bit'?s not a big deal\b`,
			`\byou'?ll get over it\b`,
			`\bstop exaggerating\b`,
			`\btoughen up\b`,
			`\bgrow up\b`,
			`\bthat'?s all\?`,
		),
	},
	{
		Label:    LabelUnsolicitedAdvice,
		Polarity: types.PolarityDamagesTrust,
		Points:   -3,
		Patterns: patterns(
			`\byou should\b`,
			`\byou need to\b`,
			`\bwhat i would do\b`,
			`\bjust (do|try)\b`,
			`\bmy advice is\b`,
			`\bif i were you\b`,
			`\bthe best thing (is|would be)\b`,
			`\bwhat you need to do\b`,
			`\bobviously\b`,
			`\byou must\b`,
		),
	},
}

// DefaultRules returns a copy of the built-in category table. Compiled
// patterns are shared; they are safe for concurrent use.
func DefaultRules() []SignalRule {
	out := make([]SignalRule, len(defaultRules))
	copy(out, defaultRules)
	return out
}
