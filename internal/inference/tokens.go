package inference

import (
	"errors"
	"fmt"

	"github.com/samcharles93/llamabridge/internal/llm"
)

// pieceBufSize bounds the text of a single token.
const pieceBufSize = 256

var (
	ErrTokenization = errors.New("tokenization failed")
	ErrPieceDecode  = errors.New("token piece decode failed")
	ErrDecode       = errors.New("decode failed")
)

// tokenAdapter converts between text and tokens through a vocabulary.
type tokenAdapter struct {
	vocab llm.Vocab
	buf   [pieceBufSize]byte
}

// encode tokenizes text with BOS/EOS framing and control-token parsing.
func (a *tokenAdapter) encode(text string) (toks []llm.Token, err error) {
	if a.vocab == nil {
		return nil, fmt.Errorf("%w: no vocabulary", ErrTokenization)
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic in Tokenize: %v", ErrTokenization, rec)
		}
	}()
	toks, err = a.vocab.Tokenize(text, true, true)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenization, err)
	}
	return toks, nil
}

// piece returns the text of tok. The result may be empty.
func (a *tokenAdapter) piece(tok llm.Token) (string, error) {
	n := a.vocab.TokenToPiece(tok, a.buf[:])
	if n < 0 {
		return "", fmt.Errorf("%w: token %d needs %d bytes", ErrPieceDecode, tok, -n)
	}
	if n > len(a.buf) {
		return "", fmt.Errorf("%w: token %d reported %d bytes", ErrPieceDecode, tok, n)
	}
	return string(a.buf[:n]), nil
}
