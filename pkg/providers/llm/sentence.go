package llm

import "strings"

// chunkBySentence splits text on sentence-ending punctuation and delivers
// each sentence (including its terminator) to onToken, for providers whose
// Stream is a fallback over a batch Complete call rather than a native
// token stream.
func chunkBySentence(text string, onToken func(token string) error) error {
	var sentence strings.Builder
	for _, r := range text {
		sentence.WriteRune(r)
		switch r {
		case '.', '!', '?', '\n':
			if err := onToken(sentence.String()); err != nil {
				return err
			}
			sentence.Reset()
		}
	}
	if sentence.Len() > 0 {
		return onToken(sentence.String())
	}
	return nil
}
