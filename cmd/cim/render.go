package main

import (
	"cim/domain"
	"cim/domain/event"
	"fmt"
	"strings"
	"time"

	"github.com/gookit/color"
)

// renderer formats display events as console lines.
type renderer struct {
	colours bool
}

func (r renderer) paint(style color.Style, s string) string {
	if !r.colours {
		return s
	}
	return style.Render(s)
}

var (
	styleTime    = color.New(color.FgGray)
	styleOwn     = color.New(color.FgGreen, color.OpBold)
	styleOther   = color.New(color.FgCyan, color.OpBold)
	styleInfo    = color.New(color.FgYellow)
	styleError   = color.New(color.FgRed)
	styleFatal   = color.New(color.BgRed, color.FgWhite, color.OpBold)
	styleChannel = color.New(color.FgMagenta)
)

// Render returns the line for e, or "" when the event is not shown.
func (r renderer) Render(e event.DisplayEvent) string {
	stamp := r.paint(styleTime, e.OccurredAt().Local().Format(time.TimeOnly))
	switch evt := e.(type) {
	case event.NewMessage:
		sender := r.paint(lineStyle(evt.Own), evt.Sender)
		return fmt.Sprintf("%s %s <%s> %s", stamp, r.paint(styleChannel, evt.Channel), sender, evt.Body)
	case event.PresenceChanged:
		where := ""
		if evt.Channel != "" {
			where = " in " + evt.Channel
		}
		text := fmt.Sprintf("* %s is %s%s", evt.User, evt.Status, where)
		if evt.Status == event.Renamed {
			text = fmt.Sprintf("* %s is now known as %s", evt.OldUsername, evt.User)
		}
		return fmt.Sprintf("%s %s", stamp, r.paint(styleInfo, text))
	case event.ChannelJoined:
		return fmt.Sprintf("%s %s", stamp, r.paint(styleInfo,
			fmt.Sprintf("* joined %s (%s)", evt.Channel, strings.Join(evt.Members, ", "))))
	case event.ChannelLeft:
		return fmt.Sprintf("%s %s", stamp, r.paint(styleInfo, "* left "+evt.Channel))
	case event.MemberList:
		return fmt.Sprintf("%s %s", stamp, r.paint(styleInfo,
			fmt.Sprintf("* %s: %s", evt.Channel, strings.Join(evt.Members, ", "))))
	case event.NickChanged:
		return fmt.Sprintf("%s %s", stamp, r.paint(styleInfo, "* you are now "+evt.New))
	case event.Notice:
		return fmt.Sprintf("%s %s", stamp, r.paint(styleInfo, "-!- "+evt.Text))
	case event.DeliveryFailed:
		target := evt.Channel
		if target == "" {
			target = string(evt.Kind)
		}
		return fmt.Sprintf("%s %s", stamp, r.paint(styleError,
			fmt.Sprintf("! %s failed: %s", target, evt.Reason)))
	case event.SessionError:
		return fmt.Sprintf("%s %s", stamp, r.paint(styleError, "! "+evt.Reason))
	case event.FatalError:
		return fmt.Sprintf("%s %s", stamp, r.paint(styleFatal, "!! "+evt.Reason))
	case event.ConnectionStateChanged:
		return r.connection(stamp, evt)
	default:
		return ""
	}
}

func (r renderer) connection(stamp string, evt event.ConnectionStateChanged) string {
	switch evt.To {
	case domain.Connected:
		return fmt.Sprintf("%s %s", stamp, r.paint(styleInfo, "-!- connected"))
	case domain.Reconnecting:
		text := fmt.Sprintf("-!- connection lost, retry #%d", evt.Attempt)
		if evt.Err != nil {
			text = fmt.Sprintf("%s (%v)", text, evt.Err)
		}
		return fmt.Sprintf("%s %s", stamp, r.paint(styleError, text))
	case domain.Disconnected:
		return fmt.Sprintf("%s %s", stamp, r.paint(styleError, "-!- disconnected"))
	default:
		return ""
	}
}

func lineStyle(own bool) color.Style {
	if own {
		return styleOwn
	}
	return styleOther
}
