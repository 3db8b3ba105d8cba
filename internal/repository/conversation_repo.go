package repository

import (
	"Palaver/internal/model"
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

type ConversationRepo interface {
	CreateConversation(ctx context.Context, conv *model.Conversation, memberIDs []uint64) error
	GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error)
	GetConversationByPeerKey(ctx context.Context, peerKey string) (*model.Conversation, error)
	DeleteConversation(ctx context.Context, convID uint64) error

	IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error)
	GetMemberIDs(ctx context.Context, convID uint64) ([]uint64, error)
	AddMembers(ctx context.Context, convID uint64, userIDs []uint64) error
	RemoveMember(ctx context.Context, convID uint64, userID uint64) error

	UpdateReadSeq(ctx context.Context, convID, userID, seq uint64) error
	IncrMaxSeq(ctx context.Context, convID uint64, lastMsg string, msgType int8, senderID uint64) (uint64, error)

	GetUserConversationMemList(ctx context.Context, userID uint64) ([]*model.ConversationMember, error)
	GetUnreadMap(ctx context.Context, userID uint64) (map[uint64]uint64, error)
}

type conversationRepoImpl struct {
	db *gorm.DB
}

func NewConversationRepo(db *gorm.DB) ConversationRepo {
	return &conversationRepoImpl{db: db}
}

// CreateConversation 开启事务创建会话及初始成员
func (s *conversationRepoImpl) CreateConversation(ctx context.Context, conv *model.Conversation, memberIDs []uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		for _, uid := range memberIDs {
			m := &model.ConversationMember{
				ConversationID: conv.ID,
				UserID:         uid,
				JoinedAt:       time.Now(),
			}
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetConversation 根据会话 ID 获取会话
func (s *conversationRepoImpl) GetConversation(ctx context.Context, convID uint64) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).First(&conv, convID).Error
	return &conv, err
}

// GetConversationByPeerKey 根据单聊标识获取会话
func (s *conversationRepoImpl) GetConversationByPeerKey(ctx context.Context, peerKey string) (*model.Conversation, error) {
	var conv model.Conversation
	err := s.db.WithContext(ctx).Where("peer_key = ?", peerKey).First(&conv).Error
	return &conv, err
}

// DeleteConversation 删除会话及全部成员行
func (s *conversationRepoImpl) DeleteConversation(ctx context.Context, convID uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", convID).
			Delete(&model.ConversationMember{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Conversation{}, convID).Error
	})
}

// IsMember 检查用户是否是会话成员
func (s *conversationRepoImpl) IsMember(ctx context.Context, convID uint64, userID uint64) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Count(&count).Error
	return count > 0, err
}

// GetMemberIDs 获取会话全部成员 ID
func (s *conversationRepoImpl) GetMemberIDs(ctx context.Context, convID uint64) ([]uint64, error) {
	var ids []uint64
	err := s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ?", convID).
		Pluck("user_id", &ids).Error
	return ids, err
}

// AddMembers 批量添加成员，撞唯一索引的行视为已在群内并跳过
func (s *conversationRepoImpl) AddMembers(ctx context.Context, convID uint64, userIDs []uint64) error {
	for _, uid := range userIDs {
		m := &model.ConversationMember{
			ConversationID: convID,
			UserID:         uid,
			JoinedAt:       time.Now(),
		}
		if err := s.db.WithContext(ctx).Create(m).Error; err != nil {
			if isDuplicateError(err) {
				continue
			}
			return err
		}
	}
	return nil
}

func isDuplicateError(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
		return true
	}
	return false
}

// RemoveMember 移除单个成员
func (s *conversationRepoImpl) RemoveMember(ctx context.Context, convID uint64, userID uint64) error {
	return s.db.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Delete(&model.ConversationMember{}).Error
}

// UpdateReadSeq 更新用户已读进度
func (s *conversationRepoImpl) UpdateReadSeq(ctx context.Context, convID, userID, seq uint64) error {
	return s.db.WithContext(ctx).Model(&model.ConversationMember{}).
		Where("conversation_id = ? AND user_id = ?", convID, userID).
		Update("read_msg_seq", seq).Error
}

// IncrMaxSeq 核心定序逻辑：利用 MySQL 行锁确保 Seq 绝对递增
func (s *conversationRepoImpl) IncrMaxSeq(ctx context.Context, convID uint64, lastMsg string, msgType int8, senderID uint64) (uint64, error) {
	var maxSeq uint64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 原子更新序列号与预览信息
		err := tx.Model(&model.Conversation{}).Where("id = ?", convID).
			Updates(map[string]interface{}{
				"max_msg_seq":      gorm.Expr("max_msg_seq + 1"),
				"last_msg_content": lastMsg,
				"last_msg_type":    msgType,
				"last_sender_id":   senderID,
				"last_message_at":  time.Now(),
			}).Error
		if err != nil {
			return err
		}

		// 读取并返回自增后的最新 Seq
		return tx.Model(&model.Conversation{}).Select("max_msg_seq").Where("id = ?", convID).Scan(&maxSeq).Error
	})
	return maxSeq, err
}

// GetUserConversationMemList 联表查询，利用嵌套 Model 自动装配
func (s *conversationRepoImpl) GetUserConversationMemList(ctx context.Context, userID uint64) ([]*model.ConversationMember, error) {
	var members []*model.ConversationMember
	// 使用 Conversation__ 别名配合 GORM 的嵌套填充特性
	err := s.db.WithContext(ctx).Table("conversation_members m").
		Select("m.*, "+
			"c.id AS `Conversation__id`, c.type AS `Conversation__type`, "+
			"c.name AS `Conversation__name`, c.creator_id AS `Conversation__creator_id`, "+
			"c.peer_key AS `Conversation__peer_key`, "+
			"c.max_msg_seq AS `Conversation__max_msg_seq`, "+
			"c.last_msg_content AS `Conversation__last_msg_content`, "+
			"c.last_msg_type AS `Conversation__last_msg_type`, "+
			"c.last_sender_id AS `Conversation__last_sender_id`, "+
			"c.last_message_at AS `Conversation__last_message_at`, "+
			"(c.max_msg_seq - m.read_msg_seq) AS unread_count").
		Joins("JOIN conversations c ON m.conversation_id = c.id").
		Where("m.user_id = ?", userID).
		Order("c.last_message_at DESC").
		Find(&members).Error
	return members, err
}

// GetUnreadMap 重连全量校准：按会话重推未读数
func (s *conversationRepoImpl) GetUnreadMap(ctx context.Context, userID uint64) (map[uint64]uint64, error) {
	type Result struct {
		ConversationID uint64
		Unread         uint64
	}
	var results []Result
	err := s.db.WithContext(ctx).Table("conversation_members m").
		Joins("JOIN conversations c ON m.conversation_id = c.id").
		Where("m.user_id = ? AND c.max_msg_seq > m.read_msg_seq", userID).
		Select("m.conversation_id, (c.max_msg_seq - m.read_msg_seq) AS unread").
		Find(&results).Error
	if err != nil {
		return nil, err
	}

	resMap := make(map[uint64]uint64, len(results))
	for _, r := range results {
		resMap[r.ConversationID] = r.Unread
	}
	return resMap, nil
}
