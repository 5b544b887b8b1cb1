package ofs

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidDesign = errors.New("invalid design token")

// ElementDesign is one parsed design token
// <player>.<ElementType>@<Location>[,<Module>]*.
type ElementDesign struct {
	Player   int
	Type     string
	Location string
	Modules  []string
}

func (d ElementDesign) String() string {
	s := fmt.Sprintf("%d.%s@%s", d.Player, d.Type, d.Location)
	if len(d.Modules) > 0 {
		s += "," + strings.Join(d.Modules, ",")
	}
	return s
}

// ParseDesign splits a whitespace-separated list of design tokens. Players
// are numbered from 1 and must not exceed numPlayers.
func ParseDesign(elements string, numPlayers int) ([]ElementDesign, error) {
	var out []ElementDesign
	for _, token := range strings.Fields(elements) {
		d, err := parseToken(token)
		if err != nil {
			return nil, err
		}
		if d.Player > numPlayers {
			return nil, fmt.Errorf("%w %q: player %d of %d", ErrInvalidDesign, token, d.Player, numPlayers)
		}
		out = append(out, d)
	}
	return out, nil
}

func parseToken(token string) (ElementDesign, error) {
	dot := strings.IndexByte(token, '.')
	at := strings.IndexByte(token, '@')
	if dot <= 0 || at < dot+2 {
		return ElementDesign{}, fmt.Errorf("%w %q: want <player>.<type>@<location>", ErrInvalidDesign, token)
	}
	player, err := strconv.Atoi(token[:dot])
	if err != nil || player < 1 {
		return ElementDesign{}, fmt.Errorf("%w %q: bad player", ErrInvalidDesign, token)
	}
	parts := strings.Split(token[at+1:], ",")
	if parts[0] == "" {
		return ElementDesign{}, fmt.Errorf("%w %q: missing location", ErrInvalidDesign, token)
	}
	for _, m := range parts[1:] {
		if m == "" {
			return ElementDesign{}, fmt.Errorf("%w %q: empty module", ErrInvalidDesign, token)
		}
	}
	return ElementDesign{
		Player:   player,
		Type:     token[dot+1 : at],
		Location: parts[0],
		Modules:  parts[1:],
	}, nil
}
