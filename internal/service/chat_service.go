package service

import (
	"context"

	"github.com/amirk1998/stocktalk/internal/models"
	"github.com/amirk1998/stocktalk/internal/repository"
	"github.com/amirk1998/stocktalk/pkg/validator"
)

type ChatService struct {
	chatRepo  *repository.ChatRepository
	validator *validator.Validator
}

// NewChatService creates a new chat service
func NewChatService(chatRepo *repository.ChatRepository) *ChatService {
	return &ChatService{
		chatRepo:  chatRepo,
		validator: validator.New(),
	}
}

// Post stores a message in the shared room. The text is kept as sent.
func (s *ChatService) Post(ctx context.Context, userID int, req *models.CreateChatRequest) (*models.ChatMessage, error) {
	message := s.validator.SanitizeString(req.Message)

	if err := s.validator.ValidateChatMessage(message); err != nil {
		return nil, err
	}

	chat := &models.ChatMessage{
		UserID:  userID,
		Message: message,
	}

	if err := s.chatRepo.Create(ctx, chat); err != nil {
		return nil, userGone(err)
	}

	return chat, nil
}

// Latest returns the most recent messages, oldest first
func (s *ChatService) Latest(ctx context.Context) ([]*models.ChatMessage, error) {
	return s.chatRepo.ListLatest(ctx, FeedLimit)
}
