package moderation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nexus-chat/moderation-service/internal/domain"
	apperrors "github.com/nexus-chat/moderation-service/pkg/util/errorutil"
)

const (
	defaultBanReason    = "No reason provided"
	defaultDeleteReason = "Admin policy"
	maxMultiplier       = 100
)

var usage = map[domain.CommandKind]string{
	domain.CommandGiveCoins:     "/givecoins <user|all> <amount>",
	domain.CommandGiveBadge:     "/givebadge <user|all> <badge>",
	domain.CommandBan:           "/ban <user> [reason...]",
	domain.CommandDeleteAccount: "/deleteaccount <user> [reason...]",
	domain.CommandReset:         "/reset <user>",
	domain.CommandBroadcast:     "/broadcast <text...>",
	domain.CommandSetMultiplier: "/setmultiplier <factor>",
}

// IsCommand reports whether text is addressed to the command parser.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// ParseCommand turns a "/name args..." line into one of the command variants.
func ParseCommand(input string) (domain.Command, error) {
	line := strings.TrimSpace(input)
	fields := strings.Fields(line)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return nil, apperrors.NewValidationError("not a command", nil)
	}

	kind := domain.CommandKind(strings.ToLower(strings.TrimPrefix(fields[0], "/")))
	args := fields[1:]
	rest := func(from int) string {
		if len(args) <= from {
			return ""
		}
		return strings.Join(args[from:], " ")
	}

	switch kind {
	case domain.CommandGiveCoins:
		if len(args) != 2 {
			return nil, usageError(kind)
		}
		amount, err := strconv.ParseInt(args[1], 10, 64)
		if err != nil || amount <= 0 {
			return nil, apperrors.NewValidationError("coin amount must be a positive integer",
				map[string]any{"amount": args[1], "usage": usage[kind]})
		}
		return domain.GiveCoinsCommand{Target: parseTarget(args[0]), Amount: amount}, nil

	case domain.CommandGiveBadge:
		if len(args) < 2 {
			return nil, usageError(kind)
		}
		return domain.GiveBadgeCommand{Target: parseTarget(args[0]), Badge: rest(1)}, nil

	case domain.CommandBan:
		if len(args) < 1 {
			return nil, usageError(kind)
		}
		return domain.BanCommand{Username: args[0], Reason: orDefault(rest(1), defaultBanReason)}, nil

	case domain.CommandDeleteAccount:
		if len(args) < 1 {
			return nil, usageError(kind)
		}
		return domain.DeleteAccountCommand{Username: args[0], Reason: orDefault(rest(1), defaultDeleteReason)}, nil

	case domain.CommandReset:
		if len(args) != 1 {
			return nil, usageError(kind)
		}
		return domain.ResetCommand{Username: args[0]}, nil

	case domain.CommandBroadcast:
		text := strings.TrimSpace(strings.TrimPrefix(line, fields[0]))
		if text == "" {
			return nil, usageError(kind)
		}
		return domain.BroadcastCommand{Text: text}, nil

	case domain.CommandSetMultiplier:
		if len(args) != 1 {
			return nil, usageError(kind)
		}
		factor, err := strconv.ParseFloat(strings.TrimSuffix(strings.ToLower(args[0]), "x"), 64)
		if err != nil || factor < 0 || factor > maxMultiplier {
			return nil, apperrors.NewValidationError(
				fmt.Sprintf("multiplier must be a number between 0 and %d", maxMultiplier),
				map[string]any{"factor": args[0], "usage": usage[kind]})
		}
		return domain.SetMultiplierCommand{Factor: factor}, nil

	default:
		return nil, apperrors.NewValidationError(fmt.Sprintf("unknown command %q", fields[0]),
			map[string]any{"commands": commandList()})
	}
}

func parseTarget(arg string) domain.Target {
	if strings.EqualFold(arg, "all") {
		return domain.Target{All: true}
	}
	return domain.Target{Username: arg}
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func usageError(kind domain.CommandKind) error {
	return apperrors.NewValidationError("usage: "+usage[kind], map[string]any{"usage": usage[kind]})
}

func commandList() []string {
	return []string{
		usage[domain.CommandGiveCoins],
		usage[domain.CommandGiveBadge],
		usage[domain.CommandBan],
		usage[domain.CommandDeleteAccount],
		usage[domain.CommandReset],
		usage[domain.CommandBroadcast],
		usage[domain.CommandSetMultiplier],
	}
}
