package router

import "github.com/ibrb-io/aorta/errors"

// Rule is a single routing rule: a conjunction of criteria, the
// destinations to emit on a match, destinations to exclude, and whether to
// also forward to the message's reply-to address.
type Rule struct {
	Criterions      []Criterion `yaml:"criterions" validate:"required,min=1,dive"`
	Destinations    []string    `yaml:"destinations" validate:"required"`
	Exclude         []string    `yaml:"exclude"`
	ReturnToSender  bool        `yaml:"return_to_sender"`
}

// validate runs the hand-written operator check go-playground's struct
// tags cannot express, alongside the tag-driven pass in load.go.
func (r Rule) validate() error {
	for i, c := range r.Criterions {
		if err := c.validate(); err != nil {
			return errors.Wrapf(err, "criterion %d", i)
		}
	}
	return nil
}
