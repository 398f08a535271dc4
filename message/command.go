// Copyright 2026 The SimpleX Bot Authors
// SPDX-License-Identifier: Apache-2.0

package message

import "strings"

// CommandPrefix marks a chat message as a bot command.
const CommandPrefix = "!"

// Command is one parsed command invocation together with the message
// it arrived in.
type Command struct {
	// Name is the command name, lowercased, without the prefix.
	Name string

	// Args are the tokenized arguments.
	Args []string

	// ArgString is the raw argument text after the command name,
	// for handlers that want the unsplit remainder.
	ArgString string

	// Message is the normalized message the command arrived in.
	Message Context
}

// ParseCommand parses a chat message into a Command. Returns false
// when the text does not start with the command prefix or names no
// command (a bare "!").
func ParseCommand(context Context) (Command, bool) {
	text := strings.TrimSpace(context.Text)
	if !strings.HasPrefix(text, CommandPrefix) {
		return Command{}, false
	}
	text = text[len(CommandPrefix):]
	if text == "" || text[0] == ' ' || text[0] == '\t' {
		return Command{}, false
	}

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return Command{}, false
	}

	name := strings.ToLower(tokens[0])
	argString := strings.TrimSpace(strings.TrimPrefix(text, tokens[0]))

	return Command{
		Name:      name,
		Args:      tokens[1:],
		ArgString: argString,
		Message:   context,
	}, true
}

// Tokenize splits text into whitespace-separated tokens, honoring
// double-quoted segments: `echo "hello world" foo` yields three
// tokens with "hello world" intact. An unterminated quote makes the
// whole input malformed, in which case Tokenize falls back to a plain
// whitespace split so the command still dispatches.
func Tokenize(text string) []string {
	tokens, ok := tokenizeQuoted(text)
	if !ok {
		return strings.Fields(text)
	}
	return tokens
}

func tokenizeQuoted(text string) ([]string, bool) {
	var tokens []string
	var current strings.Builder
	inQuotes := false
	inToken := false

	for _, r := range text {
		switch {
		case r == '"':
			inQuotes = !inQuotes
			// A quote pair always delimits a token, so "" is an
			// empty argument and abc"def" is two tokens.
			if inQuotes && inToken {
				tokens = append(tokens, current.String())
				current.Reset()
			}
			inToken = true
		case (r == ' ' || r == '\t' || r == '\n') && !inQuotes:
			if inToken {
				tokens = append(tokens, current.String())
				current.Reset()
				inToken = false
			}
		default:
			current.WriteRune(r)
			inToken = true
		}
	}

	if inQuotes {
		return nil, false
	}
	if inToken {
		tokens = append(tokens, current.String())
	}
	return tokens, true
}
