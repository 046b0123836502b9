package gemini

import "github.com/ashureev/pm-roleplay/internal/domain"

// Turn roles understood by the API.
const (
	TurnRoleUser  = "user"
	TurnRoleModel = "model"
)

// Turn is one entry of the API conversation.
type Turn struct {
	Role string
	Text string
}

// TurnRole maps a message role to an API role: agent becomes model,
// everything else becomes user.
func TurnRole(r domain.Role) string {
	if r == domain.RoleAgent {
		return TurnRoleModel
	}
	return TurnRoleUser
}

// MessageRole is the reverse of TurnRole. System messages are not recoverable
// and come back as user.
func MessageRole(turnRole string) domain.Role {
	if turnRole == TurnRoleModel {
		return domain.RoleAgent
	}
	return domain.RoleUser
}

// TurnsFromMessages maps history one-to-one, preserving order.
func TurnsFromMessages(messages []domain.Message) []Turn {
	turns := make([]Turn, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, Turn{Role: TurnRole(m.Role), Text: m.Content})
	}
	return turns
}
