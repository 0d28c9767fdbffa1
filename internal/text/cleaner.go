// Package text implements the token-id text cleaner consumed by the dataset
// transformer.
//
// The cleaner normalizes raw transcript text (abbreviations, numbers,
// punctuation variants, whitespace) and maps the result onto a fixed symbol
// table. Id 0 is reserved for padding and is never produced for real symbols.
package text

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// The symbol table. Position is the token id; '_' occupies id 0 as the pad
// sentinel and is not reachable from input text.
const symbolSet = "_-!'(),.:;? abcdefghijklmnopqrstuvwxyz"

const (
	numberBaseTen      = 10
	numberBaseTwenty   = 20
	numberBaseHundred  = 100
	numberBaseThousand = 1000
	maxNumberForWords  = 999999
)

const (
	numberRegexPattern     = `\d+`
	whitespaceRegexPattern = `\s+`
)

var (
	// ErrEmptyText indicates input with no content at all.
	ErrEmptyText = errors.New("text is empty")
	// ErrNoUsableSymbols indicates input that normalized to an empty token
	// sequence.
	ErrNoUsableSymbols = errors.New("text contains no usable symbols")
)

// Cleaner normalizes transcripts and encodes them as token ids.
type Cleaner struct {
	numberPattern     *regexp.Regexp
	whitespacePattern *regexp.Regexp
	abbreviations     *strings.Replacer
	punctuation       *strings.Replacer
	symbolIDs         map[rune]int
}

// NewCleaner creates a cleaner with compiled patterns and replacers.
func NewCleaner() *Cleaner {
	abbreviations := []string{
		"Mr.", "Mister",
		"Mrs.", "Misses",
		"Ms.", "Miss",
		"Dr.", "Doctor",
		"St.", "Saint",
		"Co.", "Company",
		"Ltd.", "Limited",
		"Corp.", "Corporation",
		"Inc.", "Incorporated",
	}

	punctuation := []string{
		"—", "-",
		"–", "-",
		"‒", "-",
		"…", "...",
		"“", "\"",
		"”", "\"",
		"‘", "'",
		"’", "'",
	}

	symbolIDs := make(map[rune]int, len(symbolSet))
	for i, symbol := range symbolSet {
		symbolIDs[symbol] = i
	}

	return &Cleaner{
		numberPattern:     regexp.MustCompile(numberRegexPattern),
		whitespacePattern: regexp.MustCompile(whitespaceRegexPattern),
		abbreviations:     strings.NewReplacer(abbreviations...),
		punctuation:       strings.NewReplacer(punctuation...),
		symbolIDs:         symbolIDs,
	}
}

// Clean normalizes rawText and returns its token-id sequence. Runes outside
// the symbol table are dropped. The result never contains negative ids or
// the pad sentinel.
func (c *Cleaner) Clean(rawText string) ([]int, error) {
	if strings.TrimSpace(rawText) == "" {
		return nil, ErrEmptyText
	}

	normalized := c.abbreviations.Replace(rawText)
	normalized = c.normalizeNumbers(normalized)
	normalized = c.punctuation.Replace(normalized)
	normalized = strings.ToLower(normalized)
	normalized = c.whitespacePattern.ReplaceAllString(normalized, " ")
	normalized = strings.TrimSpace(normalized)

	tokenIDs := make([]int, 0, len(normalized))

	for _, symbol := range normalized {
		id, known := c.symbolIDs[symbol]
		if !known || symbol == '_' {
			continue
		}

		tokenIDs = append(tokenIDs, id)
	}

	if len(tokenIDs) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoUsableSymbols, rawText)
	}

	return tokenIDs, nil
}

// normalizeNumbers spells out every integer in the text.
func (c *Cleaner) normalizeNumbers(input string) string {
	return c.numberPattern.ReplaceAllStringFunc(input, func(match string) string {
		number, err := strconv.Atoi(match)
		if err != nil {
			return match
		}

		return integerToWords(number)
	})
}

var (
	wordsOnes = []string{
		"", "one", "two", "three", "four", "five",
		"six", "seven", "eight", "nine",
	}
	wordsTeens = []string{
		"ten", "eleven", "twelve", "thirteen", "fourteen",
		"fifteen", "sixteen", "seventeen", "eighteen", "nineteen",
	}
	wordsTens = []string{
		"", "", "twenty", "thirty", "forty", "fifty",
		"sixty", "seventy", "eighty", "ninety",
	}
)

func wordsUnderHundred(number int) string {
	switch {
	case number < numberBaseTen:
		return wordsOnes[number]
	case number < numberBaseTwenty:
		return wordsTeens[number-numberBaseTen]
	default:
		result := wordsTens[number/numberBaseTen]
		if number%numberBaseTen > 0 {
			result += " " + wordsOnes[number%numberBaseTen]
		}

		return result
	}
}

func wordsUnderThousand(number int) string {
	var parts []string

	hundreds := number / numberBaseHundred
	if hundreds > 0 {
		parts = append(parts, wordsOnes[hundreds]+" hundred")
	}

	remainder := number % numberBaseHundred
	if remainder > 0 {
		parts = append(parts, wordsUnderHundred(remainder))
	}

	return strings.Join(parts, " ")
}

// integerToWords converts an integer into its English word representation.
// Numbers outside the supported range pass through as digits.
func integerToWords(number int) string {
	if number < 0 || number > maxNumberForWords {
		return strconv.Itoa(number)
	}

	if number == 0 {
		return "zero"
	}

	var parts []string

	thousands := number / numberBaseThousand
	if thousands > 0 {
		parts = append(parts, wordsUnderThousand(thousands)+" thousand")
	}

	remainder := number % numberBaseThousand
	if remainder > 0 {
		parts = append(parts, wordsUnderThousand(remainder))
	}

	return strings.Join(parts, " ")
}
