package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Prompter asks questions on out and reads answers line by line from in.
type Prompter struct {
	scanner *bufio.Scanner
	out     io.Writer
}

// NewPrompter creates a Prompter.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{scanner: bufio.NewScanner(in), out: out}
}

// Line prints label and returns the next trimmed line. io.EOF means input ended.
func (p *Prompter) Line(label string) (string, error) {
	fmt.Fprint(p.out, label)
	if !p.scanner.Scan() {
		if err := p.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return strings.TrimSpace(p.scanner.Text()), nil
}

// Required repeats the question until a non-empty answer is given.
func (p *Prompter) Required(label string) (string, error) {
	for {
		v, err := p.Line(label)
		if err != nil {
			return "", err
		}
		if v != "" {
			return v, nil
		}
		fmt.Fprintln(p.out, "value is required")
	}
}

// Credentials asks for a username and password.
func (p *Prompter) Credentials() (username, password string, err error) {
	if username, err = p.Required("Username: "); err != nil {
		return "", "", err
	}
	if password, err = p.Required("Password: "); err != nil {
		return "", "", err
	}
	return username, password, nil
}

// MintParams asks for the fields of a document to mint. contentID and
// contentHash prefill the answers when a file was just uploaded.
func (p *Prompter) MintParams(contentID, contentHash string) (MintParams, error) {
	var (
		mp  MintParams
		err error
	)
	if mp.ContentID, err = p.withDefault("Content id", contentID); err != nil {
		return mp, err
	}
	if mp.ContentHash, err = p.withDefault("Content hash", contentHash); err != nil {
		return mp, err
	}
	if mp.Owner, err = p.Required("Owner (username or id): "); err != nil {
		return mp, err
	}
	if mp.Name, err = p.Line("Name (optional): "); err != nil {
		return mp, err
	}
	if mp.RecipientEmail, err = p.Line("Notify email (optional): "); err != nil {
		return mp, err
	}
	return mp, nil
}

func (p *Prompter) withDefault(label, def string) (string, error) {
	if def == "" {
		return p.Required(label + ": ")
	}
	v, err := p.Line(fmt.Sprintf("%s [%s]: ", label, def))
	if err != nil {
		return "", err
	}
	if v == "" {
		return def, nil
	}
	return v, nil
}

// Confirm asks a yes/no question; anything but y or yes is a no.
func (p *Prompter) Confirm(label string) (bool, error) {
	v, err := p.Line(label + " [y/N]: ")
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	v = strings.ToLower(v)
	return v == "y" || v == "yes", nil
}
