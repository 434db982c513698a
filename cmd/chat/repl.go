package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"gigchat/internal/attachment"
	"gigchat/internal/outbox"
	"gigchat/internal/session"
)

// Controller is the part of session.Controller the prompt drives
type Controller interface {
	SetBody(text string)
	Submit(ctx context.Context) error
	SelectFile(f attachment.File) error
	RemoveFile()
	OpenOffer() error
	CloseOffer()
	SubmitOffer(ctx context.Context, in session.OfferInput) error
	MarkRead(ctx context.Context) error
}

// Pager is the part of feed.Feed the prompt drives
type Pager interface {
	SetSkip(skip bool)
	LoadOlder(ctx context.Context) (bool, error)
}

type repl struct {
	ctrl Controller
	feed Pager
	term *terminal
}

// command is one parsed input line
type command struct {
	name string
	args []string
	text string
}

func parseLine(line string) command {
	if !strings.HasPrefix(line, "/") {
		return command{text: line}
	}
	fields := strings.Fields(line)
	return command{name: strings.TrimPrefix(fields[0], "/"), args: fields[1:]}
}

func parseOffer(args []string) (session.OfferInput, error) {
	if len(args) < 3 {
		return session.OfferInput{}, errors.New("usage: /offer <price> <days> <details>")
	}
	price, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		return session.OfferInput{}, fmt.Errorf("price %q: %w", args[0], err)
	}
	days, err := strconv.Atoi(args[1])
	if err != nil {
		return session.OfferInput{}, fmt.Errorf("days %q: %w", args[1], err)
	}
	return session.OfferInput{Price: price, DeliveryInDays: days, Description: strings.Join(args[2:], " ")}, nil
}

// exec runs one line and reports whether the user asked to quit
func (r *repl) exec(ctx context.Context, line string) bool {
	if line == "" {
		return false
	}
	cmd := parseLine(line)

	switch cmd.name {
	case "":
		r.ctrl.SetBody(cmd.text)
		r.report(r.ctrl.Submit(ctx))
	case "quit", "q":
		return true
	case "file":
		if len(cmd.args) != 1 {
			r.term.Notice("usage: /file <path>")
			return false
		}
		f, err := attachment.OpenLocal(cmd.args[0])
		if err == nil {
			err = r.ctrl.SelectFile(f)
		}
		if err != nil {
			r.term.Notice(fmt.Sprintf("Cannot attach %s: %v", cmd.args[0], err))
		}
	case "remove":
		r.ctrl.RemoveFile()
	case "offer":
		in, err := parseOffer(cmd.args)
		if err != nil {
			r.term.Notice(err.Error())
			return false
		}
		if err := r.ctrl.OpenOffer(); err != nil {
			r.term.Notice("Only the seller of this conversation can send an offer.")
			return false
		}
		if err := r.ctrl.SubmitOffer(ctx, in); err != nil {
			if errors.Is(err, session.ErrInvalidOffer) {
				r.ctrl.CloseOffer()
				r.term.Notice(err.Error())
				return false
			}
			r.report(err)
		}
	case "older":
		r.feed.SetSkip(false)
		moved, err := r.feed.LoadOlder(ctx)
		switch {
		case err != nil:
			r.term.Notice("Could not load older messages.")
		case !moved:
			r.term.Notice("No older messages.")
		}
	case "read":
		if err := r.ctrl.MarkRead(ctx); err != nil {
			r.term.Notice("Could not mark messages as read.")
		}
	default:
		r.term.Notice(fmt.Sprintf("Unknown command /%s", cmd.name))
	}
	return false
}

// report surfaces errors the outbox has not already alerted
func (r *repl) report(err error) {
	switch {
	case err == nil, errors.Is(err, outbox.ErrSendFailed):
	case errors.Is(err, outbox.ErrBusy):
		r.term.Notice("Still sending the previous message.")
	default:
		r.term.Notice(err.Error())
	}
}
