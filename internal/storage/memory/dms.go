package memory

import (
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Vasu1712/scenyx-securechat/internal/models"
	"github.com/google/uuid"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrMessageNotFound      = errors.New("message not found")
	ErrNotMessageOwner      = errors.New("only the sender can delete a message")
)

// DMStore is the relay's ciphertext store: conversations, their message
// logs, registered users and their public keys. It never sees plaintext.
type DMStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.DMConversation // dmID -> conversation
	userIndex     map[string][]string               // userID -> []dmID
	messages      map[string][]*models.DMMessage    // dmID -> log, oldest first
	emails        map[string]string                 // userID -> email
	publicKeys    map[string]string                 // userID -> PEM
}

func NewDMStore() *DMStore {
	return &DMStore{
		conversations: make(map[string]*models.DMConversation),
		userIndex:     make(map[string][]string),
		messages:      make(map[string][]*models.DMMessage),
		emails:        make(map[string]string),
		publicKeys:    make(map[string]string),
	}
}

func (s *DMStore) StartOrGetConversation(user1, user2 string) *models.DMConversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	// Check if conversation exists
	for _, dmID := range s.userIndex[user1] {
		conv := s.conversations[dmID]
		if (conv.Participants[0] == user1 && conv.Participants[1] == user2) ||
			(conv.Participants[0] == user2 && conv.Participants[1] == user1) {
			return conv
		}
	}
	// Create new conversation
	now := time.Now().Unix()
	dmID := uuid.NewString()
	conv := &models.DMConversation{
		ID:           dmID,
		Participants: [2]string{user1, user2},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.conversations[dmID] = conv
	s.userIndex[user1] = append(s.userIndex[user1], dmID)
	s.userIndex[user2] = append(s.userIndex[user2], dmID)
	return conv
}

func (s *DMStore) GetConversation(dmID string) (*models.DMConversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[dmID]
	return conv, ok
}

// GetConversations lists userID's conversations, most recently active first.
func (s *DMStore) GetConversations(userID string) []*models.DMConversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*models.DMConversation
	for _, dmID := range s.userIndex[userID] {
		result = append(result, s.conversations[dmID])
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].UpdatedAt > result[j].UpdatedAt
	})
	return result
}

// AddMessage assigns an id and timestamp to msg and appends it to dmID's log.
func (s *DMStore) AddMessage(dmID string, msg models.DMMessage) (*models.DMMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[dmID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	msg.ID = uuid.NewString()
	msg.ConversationID = dmID
	msg.Timestamp = time.Now().Unix()
	msg.Reaction = nil
	s.messages[dmID] = append(s.messages[dmID], &msg)
	conv.UpdatedAt = msg.Timestamp
	out := msg
	return &out, nil
}

// GetMessages returns one page of dmID's log (1-based) and whether more
// pages follow. pageSize <= 0 returns everything.
func (s *DMStore) GetMessages(dmID string, page, pageSize int) ([]models.DMMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.messages[dmID]
	start, end := 0, len(log)
	if pageSize > 0 {
		if page < 1 {
			page = 1
		}
		start = (page - 1) * pageSize
		if start > len(log) {
			start = len(log)
		}
		if start+pageSize < end {
			end = start + pageSize
		}
	}
	out := make([]models.DMMessage, 0, end-start)
	for _, m := range log[start:end] {
		out = append(out, *m)
	}
	return out, end < len(log)
}

// DeleteMessage removes msgID if senderID sent it. Deleting an absent id
// returns ErrMessageNotFound.
func (s *DMStore) DeleteMessage(dmID, msgID, senderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.messages[dmID]
	for i, m := range log {
		if m.ID != msgID {
			continue
		}
		if m.SenderID != senderID {
			return ErrNotMessageOwner
		}
		s.messages[dmID] = append(log[:i:i], log[i+1:]...)
		return nil
	}
	return ErrMessageNotFound
}

// SetReaction stores or clears the single reaction on msgID.
func (s *DMStore) SetReaction(dmID, msgID string, reaction *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.messages[dmID] {
		if m.ID == msgID {
			if reaction == nil || *reaction == "" {
				m.Reaction = nil
			} else {
				r := *reaction
				m.Reaction = &r
			}
			return nil
		}
	}
	return ErrMessageNotFound
}

// RegisterUser records userID's email for search.
func (s *DMStore) RegisterUser(userID, email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emails[userID] = strings.ToLower(email)
}

// SearchUsers returns user ids whose email contains query, sorted.
func (s *DMStore) SearchUsers(query string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	query = strings.ToLower(strings.TrimSpace(query))
	var ids []string
	if query == "" {
		return ids
	}
	for id, email := range s.emails {
		if strings.Contains(email, query) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Email returns the registered email of userID.
func (s *DMStore) Email(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.emails[userID]
	return e, ok
}

// PutPublicKey registers userID's public key PEM, replacing any previous one.
func (s *DMStore) PutPublicKey(userID, pemData string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publicKeys[userID] = pemData
}

func (s *DMStore) PublicKey(userID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	k, ok := s.publicKeys[userID]
	return k, ok
}
