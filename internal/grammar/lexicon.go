package grammar

import "strings"

// baseVerbs is the closed set of base-form verbs the rules recognise. The set
// is deliberately limited to everyday verbs learners use in conversation so
// that the rules stay precise.
var baseVerbs = map[string]struct{}{}

// doublingVerbs double their final consonant before -ing.
var doublingVerbs = map[string]struct{}{
	"run": {}, "swim": {}, "sit": {}, "get": {}, "stop": {}, "plan": {},
	"begin": {}, "shop": {}, "put": {}, "cut": {}, "jog": {}, "chat": {},
}

// thirdPersonForms maps "goes" to "go", "studies" to "study" and so on.
var thirdPersonForms = map[string]string{}

// ingForms maps "going" to "go", "running" to "run" and so on.
var ingForms = map[string]string{}

func init() {
	for _, v := range strings.Fields(`
		go eat drink walk run read write play work study learn cook watch
		listen speak talk sleep swim drive come make take sit get do have
		see buy stay wait try help teach dance sing travel visit think use
		move plan stop begin shop put cut jog chat like love want need know
		understand live rain snow wash clean finish start call ask answer
		look feel meet bring leave give tell say carry practice enjoy
	`) {
		baseVerbs[v] = struct{}{}
		if tp := thirdPerson(v); tp != v {
			thirdPersonForms[tp] = v
		}
		ingForms[ingForm(v)] = v
	}
}

// isBaseVerb reports whether w (lower-case) is a known base-form verb.
func isBaseVerb(w string) bool {
	_, ok := baseVerbs[w]
	return ok
}

// ingForm returns the present participle of a base verb.
func ingForm(v string) string {
	switch {
	case v == "be" || v == "see" || v == "flee" || v == "agree":
		return v + "ing"
	case strings.HasSuffix(v, "ie"):
		return strings.TrimSuffix(v, "ie") + "ying"
	case strings.HasSuffix(v, "e") && !strings.HasSuffix(v, "ee"):
		return strings.TrimSuffix(v, "e") + "ing"
	}
	if _, ok := doublingVerbs[v]; ok {
		return v + v[len(v)-1:] + "ing"
	}
	return v + "ing"
}

// thirdPerson returns the third-person singular present form of a base verb.
func thirdPerson(v string) string {
	switch v {
	case "have":
		return "has"
	case "be":
		return "is"
	}
	switch {
	case strings.HasSuffix(v, "s"), strings.HasSuffix(v, "sh"), strings.HasSuffix(v, "ch"),
		strings.HasSuffix(v, "x"), strings.HasSuffix(v, "z"), strings.HasSuffix(v, "o"):
		return v + "es"
	case strings.HasSuffix(v, "y") && len(v) > 1 && !isVowel(v[len(v)-2]):
		return v[:len(v)-1] + "ies"
	}
	return v + "s"
}

func isVowel(b byte) bool {
	switch b {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}
	return false
}

// needsAn reports whether the indefinite article before w (lower-case) is
// "an". It goes by sound for the common exceptions to the vowel-letter rule.
func needsAn(w string) bool {
	if w == "" {
		return false
	}
	for _, p := range []string{"hour", "honest", "honor", "honour", "heir"} {
		if strings.HasPrefix(w, p) {
			return true
		}
	}
	for _, p := range []string{"uni", "use", "usu", "uti", "ure", "eu", "one", "once", "ewe", "ufo"} {
		if strings.HasPrefix(w, p) {
			return false
		}
	}
	return isVowel(w[0])
}
