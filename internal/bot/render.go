package bot

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"gift-circle/internal/store"

	"github.com/samber/lo"
)

const (
	secretSantaLabel   = "Your Secret Santa"
	inboxPreviewLength = 30
	conversationWindow = 5
	recentGamesLimit   = 3
)

const (
	msgGenericFailure   = "❌ Something went wrong. Please try again."
	msgUnknownCommand   = "🤔 Unknown command. Use /help to see what I can do."
	msgUnknownAction    = "❌ This button is no longer valid."
	msgJoinPrompt       = "🎮 Please enter the Game ID you want to join:"
	msgNamePrompt       = "✏️ Please enter the name others should see for you in the game:"
	msgInvalidGame      = "❌ Invalid game ID or game is already finished."
	msgAlreadyJoined    = "❌ You are already participating in this game!"
	msgGameNotFound     = "❌ Game not found."
	msgFinishDenied     = "❌ Game not found, you are not the owner, or game is already finished."
	msgAlreadyFinished  = "❌ This game has already been finished."
	msgOneParticipant   = "❌ Only one person joined the game. Need at least 2 participants for Secret Santa assignments."
	msgExhausted        = "❌ Failed to generate valid assignments after multiple attempts. Please try again."
	msgEmptyFinished    = "🎮 Game completed with 0 participants. Game has been closed."
	msgNoOwnedGames     = "❌ You have no active games to finish. Create a game first!"
	msgNoGames          = "❌ You have no games to check. Create or join a game first!"
	msgNoConversations  = "💬 No conversations available. You need to be in a finished Secret Santa game first!"
	msgEmptyInbox       = "📬 Your inbox is empty. Use /chat to start conversations!"
	msgConversationGone = "❌ Conversation not found."
	msgTypeMessage      = "💬 Type your message and send it:"
	msgCancelled        = "👌 Cancelled."
	msgNothingToCancel  = "Nothing to cancel."
)

const helpText = `Secret Santa Bot Commands:

🎮 /create - Create a new game and get a game ID
👥 /join - Join a game using the game ID
🎁 /finish - Finish a game and send assignments (game owner only)
👤 /check - Check who joined a game
💬 /chat - Send anonymous messages to your Secret Santa partner
📬 /inbox - View the latest message of every conversation
🚫 /cancel - Abort what you were typing

To create a game, use /create
Share the game ID with participants so they can /join
When ready, use /finish to assign Secret Santa pairs!`

func statusLabel(game store.Game) string {
	if game.Active() {
		return "🟢 Active"
	}
	return "🔴 Finished"
}

func statusDot(game store.Game) string {
	if game.Active() {
		return "🟢"
	}
	return "🔴"
}

func renderCreated(gameID string) Reply {
	return Reply{
		Text: fmt.Sprintf("🎮 New Secret Santa game created!\n\nGame ID: %s\n\n"+
			"Share this ID with participants. When ready, use the buttons below:", gameID),
		Buttons: [][]Button{{
			{Label: "👤 Check Participants", Action: CheckAction(gameID)},
			{Label: "🎁 Finish Game", Action: FinishAction(gameID)},
		}},
	}
}

func renderJoined(gameID, name string) Reply {
	return textf("🎉 Successfully joined game %s!\n\nYour display name: %s\n\n"+
		"Wait for the game owner to finish the game to receive your Secret Santa assignment!", gameID, name)
}

func renderRoster(game store.Game, names []string) Reply {
	var b strings.Builder
	fmt.Fprintf(&b, "👤 Game %s\n\nStatus: %s\nParticipants: %d\n\n", game.ID, statusLabel(game), len(names))
	if len(names) == 0 {
		b.WriteString("No participants yet")
	} else {
		b.WriteString("• " + strings.Join(names, "\n• "))
	}
	return Reply{Text: b.String()}
}

func renderOwnedGames(games []store.Game) Reply {
	return Reply{
		Text: "🎁 Select a game to finish:",
		Buttons: lo.Map(games, func(g store.Game, _ int) []Button {
			return []Button{{Label: "🎁 Finish " + g.ID, Action: FinishAction(g.ID)}}
		}),
	}
}

func renderRecentGames(games []store.Game) Reply {
	return Reply{
		Text: "👤 Select a game to check participants:",
		Buttons: lo.Map(games, func(g store.Game, _ int) []Button {
			return []Button{{Label: statusDot(g) + " " + g.ID, Action: CheckAction(g.ID)}}
		}),
	}
}

func renderFinished(gameID string, participants int) Reply {
	return textf("🎉 Game %s finished successfully!\n\n"+
		"All %d participants have been sent their Secret Santa assignments via private message.\n\n"+
		"Happy Secret Santa! 🎅🎁", gameID, participants)
}

func assignmentText(gameID, receiverName string) string {
	return fmt.Sprintf("🎅 Your Secret Santa assignment for game %s:\n\n"+
		"You will buy a gift for: %s\n\n"+
		"Use /chat to send anonymous messages! 💬\n\nHappy gift giving! 🎁", gameID, receiverName)
}

// partnerLabel is how userID sees the other party: the giver knows the
// receiver's name, the receiver only ever sees a placeholder.
func partnerLabel(view store.ConversationView, userID int64) string {
	if view.IsGiver(userID) {
		return view.ReceiverName
	}
	return secretSantaLabel
}

func roleIcon(view store.ConversationView, userID int64) string {
	if view.IsGiver(userID) {
		return "🎁"
	}
	return "🎅"
}

func conversationTitle(view store.ConversationView, userID int64) string {
	return fmt.Sprintf("%s Game %s → %s", roleIcon(view, userID), view.GameID, partnerLabel(view, userID))
}

func renderConversationList(summaries []store.ConversationSummary, userID int64) Reply {
	return Reply{
		Text: "📬 Select a conversation:",
		Buttons: lo.Map(summaries, func(s store.ConversationSummary, _ int) []Button {
			label := conversationTitle(s.ConversationView, userID)
			if s.MessageCount > 0 {
				label += fmt.Sprintf(" (%d)", s.MessageCount)
			}
			return []Button{{Label: label, Action: OpenAction(s.ID)}}
		}),
	}
}

func renderConversation(view store.ConversationView, messages []store.RelayMessage, userID int64) Reply {
	var b strings.Builder
	b.WriteString(conversationTitle(view, userID) + "\n\n")
	if len(messages) == 0 {
		b.WriteString("💭 No messages yet. Start the conversation!\n\n")
	}
	for _, m := range messages {
		sender := partnerLabel(view, userID)
		if m.SenderID == userID {
			sender = "You"
		}
		fmt.Fprintf(&b, "💬 %s: %s\n\n", sender, m.Body)
	}
	b.WriteString("✏️ Send a message to continue the conversation!")
	return Reply{
		Text: b.String(),
		Buttons: [][]Button{
			{{Label: "💬 Send Message", Action: SendAction(view.ID)}},
			{{Label: "🔙 Back to Conversations", Action: ConversationsAction()}},
		},
	}
}

func renderInbox(entries []store.InboxEntry, userID int64) Reply {
	var b strings.Builder
	b.WriteString("📬 Your Conversations:\n\n")
	for _, e := range entries {
		b.WriteString(conversationTitle(e.ConversationView, userID) + "\n")
		fmt.Fprintf(&b, "💭 %q\n\n", preview(e.LastMessage.Body, inboxPreviewLength))
	}
	return Reply{Text: strings.TrimRight(b.String(), "\n")}
}

// preview cuts text to at most limit characters, marking the cut.
func preview(text string, limit int) string {
	if utf8.RuneCountInString(text) <= limit {
		return text
	}
	return string([]rune(text)[:limit]) + "..."
}

// senderLabel is how the recipient of a relayed message sees its sender.
func senderLabel(view store.ConversationView, senderID int64) string {
	if view.IsGiver(senderID) {
		return "🎅 " + secretSantaLabel
	}
	return "🎁 " + view.ReceiverName
}

func notificationText(view store.ConversationView, senderID int64, body string) string {
	return fmt.Sprintf("💬 New message in Game %s!\n\nFrom: %s\nMessage: \"%s\"\n\nUse /chat to reply! 💭",
		view.GameID, senderLabel(view, senderID), body)
}

func renderScheduled(gameID, body string, minutes int) Reply {
	return textf("✅ Message scheduled!\n\n🎮 Game %s\n💬 \"%s\"\n\n"+
		"📬 Your partner will receive the message in %d minutes for privacy. "+
		"They can see it when they type /inbox or /chat", gameID, body, minutes)
}
