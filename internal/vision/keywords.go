package vision

import (
	"regexp"
	"slices"
	"strings"
)

var stopWords = map[string]struct{}{}

func init() {
	for _, w := range strings.Fields(`a an and are as at be by for from has he in is it its of on
		that the to was were will with this but they have had what when where who which
		why could would should there shows appears suggests looks seems may might image
		picture photo photograph visible seen into being`) {
		stopWords[w] = struct{}{}
	}
}

// tagPatterns capture multi-word phrases that single-word extraction would
// split apart.
var tagPatterns = compileAll(
	`\b(?:(?:young|old) )?(?:man|woman|person|people|child|kid|teen|baby|girl|boy|group)\b`,
	`\b(?:light brown|dark brown|blonde|brown|black|gray|grey|ginger|auburn) hair\b`,
	`\b(?:light|dark) (?:hair|skin)\b`,
	`\b(?:short|long|curly|straight) hair\b`,
	`\b(?:facial hair|beard|stubble|mustache)\b`,
	`\b(?:dark|light|blue|black|white|navy|brown|grey|gray|pink|red|green|orange|yellow|purple) (?:suit|shirt|dress|jacket|blazer|tie|pants|shorts|skirt|hat|cap|coat|hoodie)\b`,
	`\b(?:white|blue|pink|red|green) (?:collar|collared) (?:shirt|dress)\b`,
	`\b(?:close-up|portrait|headshot|landscape|selfie|candid|group photo|family photo)\b`,
	`\b(?:in|at) (?:the )?(?:office|home|beach|park|city|building|car|room|outdoor|indoor|restaurant|forest|kitchen|living room|bedroom|couch)\b`,
	`\b(?:city|beach|mountain|office|home|room|building|kitchen|living room|bedroom|yard|garden) (?:background|setting|scene)\b`,
	`\b(?:sitting|standing|walking|smiling|looking|working|holding|running|eating|drinking|reading|writing|playing|talking|watching|leaning)\b`,
	`\b(?:desk|table|chair|sofa|couch|window|door|wall|computer|phone|glass|book|bottle|remote|television|lamp|cup|plate|bowl|bag|camera)\b`,
	`\b(?:happy|serious|smiling|laughing|focused|professional|excited|angry|sad|relaxed|casual|formal|business|vacation)\b`,
)

var wordPattern = regexp.MustCompile(`\w+`)

func compileAll(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(e)
	}
	return out
}

// ExtractTags derives sorted, deduplicated lowercase tags from a description:
// known phrases plus every non-stop-word longer than two characters.
func ExtractTags(description string) []string {
	text := strings.ToLower(description)
	seen := make(map[string]struct{})

	add := func(tag string) {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return
		}
		if _, stop := stopWords[tag]; stop {
			return
		}
		seen[tag] = struct{}{}
	}

	for _, re := range tagPatterns {
		for _, m := range re.FindAllString(text, -1) {
			add(m)
		}
	}
	for _, w := range wordPattern.FindAllString(text, -1) {
		if len(w) > 2 {
			add(w)
		}
	}

	tags := make([]string, 0, len(seen))
	for t := range seen {
		tags = append(tags, t)
	}
	slices.Sort(tags)
	return tags
}
