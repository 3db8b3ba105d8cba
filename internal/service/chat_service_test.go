package service

import (
	"Palaver/internal/api/dto"
	"Palaver/internal/model"
	"Palaver/internal/pkg/mongo"
	"Palaver/internal/realtime"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConvRepo 内存版会话仓储，可被多个 goroutine 同时访问
type fakeConvRepo struct {
	mu       sync.Mutex
	nextID   uint64
	convs    map[uint64]*model.Conversation
	members  map[uint64][]uint64
	peerKeys map[string]uint64
	readSeqs map[[2]uint64]uint64 // {convID, userID} -> readSeq
}

func newFakeConvRepo() *fakeConvRepo {
	return &fakeConvRepo{
		convs:    make(map[uint64]*model.Conversation),
		members:  make(map[uint64][]uint64),
		peerKeys: make(map[string]uint64),
		readSeqs: make(map[[2]uint64]uint64),
	}
}

func (f *fakeConvRepo) CreateConversation(_ context.Context, conv *model.Conversation, memberIDs []uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	conv.ID = f.nextID
	f.convs[conv.ID] = conv
	f.members[conv.ID] = append([]uint64(nil), memberIDs...)
	if conv.PeerKey != "" {
		f.peerKeys[conv.PeerKey] = conv.ID
	}
	return nil
}

func (f *fakeConvRepo) GetConversation(_ context.Context, convID uint64) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[convID]
	if !ok {
		return nil, errors.New("record not found")
	}
	return conv, nil
}

func (f *fakeConvRepo) GetConversationByPeerKey(_ context.Context, peerKey string) (*model.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.peerKeys[peerKey]
	if !ok {
		return nil, errors.New("record not found")
	}
	return f.convs[id], nil
}

func (f *fakeConvRepo) DeleteConversation(_ context.Context, convID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.convs, convID)
	delete(f.members, convID)
	return nil
}

func (f *fakeConvRepo) IsMember(_ context.Context, convID uint64, userID uint64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, uid := range f.members[convID] {
		if uid == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeConvRepo) GetMemberIDs(_ context.Context, convID uint64) ([]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uint64(nil), f.members[convID]...), nil
}

func (f *fakeConvRepo) AddMembers(_ context.Context, convID uint64, userIDs []uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, uid := range userIDs {
		exists := false
		for _, cur := range f.members[convID] {
			if cur == uid {
				exists = true
				break
			}
		}
		if !exists {
			f.members[convID] = append(f.members[convID], uid)
		}
	}
	return nil
}

func (f *fakeConvRepo) RemoveMember(_ context.Context, convID uint64, userID uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.members[convID]
	out := cur[:0]
	for _, uid := range cur {
		if uid != userID {
			out = append(out, uid)
		}
	}
	f.members[convID] = out
	return nil
}

func (f *fakeConvRepo) UpdateReadSeq(_ context.Context, convID, userID, seq uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readSeqs[[2]uint64{convID, userID}] = seq
	return nil
}

func (f *fakeConvRepo) IncrMaxSeq(_ context.Context, convID uint64, lastMsg string, msgType int8, senderID uint64) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	conv, ok := f.convs[convID]
	if !ok {
		return 0, errors.New("record not found")
	}
	conv.MaxMsgSeq++
	conv.LastMsgContent = lastMsg
	conv.LastMsgType = msgType
	conv.LastSenderID = senderID
	conv.LastMessageAt = time.Now()
	return conv.MaxMsgSeq, nil
}

func (f *fakeConvRepo) GetUserConversationMemList(_ context.Context, userID uint64) ([]*model.ConversationMember, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*model.ConversationMember
	for convID, members := range f.members {
		for _, uid := range members {
			if uid != userID {
				continue
			}
			conv := f.convs[convID]
			read := f.readSeqs[[2]uint64{convID, userID}]
			out = append(out, &model.ConversationMember{
				ConversationID: convID,
				UserID:         userID,
				ReadMsgSeq:     read,
				Conversation:   *conv,
				UnreadCount:    conv.MaxMsgSeq - read,
			})
		}
	}
	return out, nil
}

func (f *fakeConvRepo) GetUnreadMap(_ context.Context, userID uint64) (map[uint64]uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[uint64]uint64)
	for convID, members := range f.members {
		for _, uid := range members {
			if uid != userID {
				continue
			}
			conv := f.convs[convID]
			read := f.readSeqs[[2]uint64{convID, userID}]
			if conv.MaxMsgSeq > read {
				out[convID] = conv.MaxMsgSeq - read
			}
		}
	}
	return out, nil
}

// fakeMessageRepo 内存版消息仓储
type fakeMessageRepo struct {
	mu       sync.Mutex
	saved    []*mongo.Message
	failSave bool
}

func (f *fakeMessageRepo) SaveMessage(_ context.Context, msg *mongo.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failSave {
		return errors.New("mongo unavailable")
	}
	f.saved = append(f.saved, msg)
	return nil
}

func (f *fakeMessageRepo) GetHistory(_ context.Context, convID uint64, beforeSeq uint64, limit int) ([]*mongo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*mongo.Message
	for _, m := range f.saved {
		if m.ConversationID != convID {
			continue
		}
		if beforeSeq > 0 && m.Seq >= beforeSeq {
			continue
		}
		out = append(out, m)
	}
	// seq 降序
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].Seq > out[i].Seq {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeMessageRepo) GetMessageBySeq(_ context.Context, convID uint64, seq uint64) (*mongo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.saved {
		if m.ConversationID == convID && m.Seq == seq {
			return m, nil
		}
	}
	return nil, errors.New("not found")
}

func (f *fakeMessageRepo) ListAttachments(_ context.Context, convID uint64) ([]mongo.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []mongo.Attachment
	for _, m := range f.saved {
		if m.ConversationID == convID {
			out = append(out, m.Attachments...)
		}
	}
	return out, nil
}

func (f *fakeMessageRepo) DeleteByConversation(_ context.Context, convID uint64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.saved[:0]
	var removed int64
	for _, m := range f.saved {
		if m.ConversationID == convID {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	f.saved = kept
	return removed, nil
}

type alertCall struct {
	convID   uint64
	viewerID uint64
}

type fakeAlerts struct {
	mu    sync.Mutex
	calls []alertCall
}

func (f *fakeAlerts) OnMessageDelivered(_ context.Context, convID uint64, viewerID uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, alertCall{convID: convID, viewerID: viewerID})
}

type chatFixture struct {
	svc      ChatService
	convRepo *fakeConvRepo
	msgRepo  *fakeMessageRepo
	alerts   *fakeAlerts
	registry *realtime.ConnectionRegistry
	typing   *realtime.TypingCoordinator
}

func newChatFixture() *chatFixture {
	convRepo := newFakeConvRepo()
	msgRepo := &fakeMessageRepo{}
	alerts := &fakeAlerts{}

	registry := realtime.NewConnectionRegistry()
	fanout := realtime.NewFanout(registry, nil)
	presence := realtime.NewPresenceTracker(registry, fanout)
	typing := realtime.NewTypingCoordinator(fanout)

	return &chatFixture{
		svc:      NewChatService(convRepo, msgRepo, fanout, typing, presence, alerts),
		convRepo: convRepo,
		msgRepo:  msgRepo,
		alerts:   alerts,
		registry: registry,
		typing:   typing,
	}
}

// seedDirect 预置一个 1<->2 的单聊会话
func (f *chatFixture) seedDirect(t *testing.T) uint64 {
	t.Helper()
	conv := &model.Conversation{Type: 1, PeerKey: "1_2"}
	require.NoError(t, f.convRepo.CreateConversation(context.Background(), conv, []uint64{1, 2}))
	return conv.ID
}

func (f *chatFixture) connect(userID uint64) *realtime.Connection {
	c := realtime.NewConnection(nil, userID, 32)
	f.registry.Register(c)
	return c
}

func nextEvents(c *realtime.Connection) []string {
	var out []string
	for {
		select {
		case data := <-c.Outbox():
			var env realtime.Envelope
			if json.Unmarshal(data, &env) == nil {
				out = append(out, env.Event)
			}
		default:
			return out
		}
	}
}

func TestSendMessageAssignsSequentialSeqs(t *testing.T) {
	f := newChatFixture()
	convID := f.seedDirect(t)

	for want := uint64(1); want <= 3; want++ {
		msg, err := f.svc.SendMessage(context.Background(), 1, &dto.SendMessageReq{
			ConversationID: convID,
			MsgType:        1,
			Content:        "hello",
		})
		require.NoError(t, err)
		assert.Equal(t, want, msg.Seq)
	}

	require.Len(t, f.msgRepo.saved, 3)
	assert.Equal(t, uint64(3), f.convRepo.convs[convID].MaxMsgSeq)
}

func TestSendMessageFansOutAndCountsUnread(t *testing.T) {
	f := newChatFixture()
	convID := f.seedDirect(t)
	bob := f.connect(2)

	_, err := f.svc.SendMessage(context.Background(), 1, &dto.SendMessageReq{
		ConversationID: convID,
		MsgType:        1,
		Content:        "hi",
	})
	require.NoError(t, err)

	events := nextEvents(bob)
	assert.Contains(t, events, realtime.EventNewMessage)
	assert.Contains(t, events, realtime.EventNewMessageAlert)

	// 未读只为非发送者累计
	assert.Equal(t, []alertCall{{convID: convID, viewerID: 2}}, f.alerts.calls)
}

func TestSendMessageRejectsNonMember(t *testing.T) {
	f := newChatFixture()
	convID := f.seedDirect(t)

	_, err := f.svc.SendMessage(context.Background(), 99, &dto.SendMessageReq{
		ConversationID: convID,
		MsgType:        1,
		Content:        "intruder",
	})
	assert.ErrorIs(t, err, ErrNotAMember)
}

func TestSendMessageRejectsEmptyBody(t *testing.T) {
	f := newChatFixture()
	convID := f.seedDirect(t)

	_, err := f.svc.SendMessage(context.Background(), 1, &dto.SendMessageReq{
		ConversationID: convID,
		MsgType:        1,
	})
	assert.ErrorIs(t, err, ErrParamInvalid)
}

func TestSendMessageRejectsUnknownMsgType(t *testing.T) {
	f := newChatFixture()
	convID := f.seedDirect(t)

	_, err := f.svc.SendMessage(context.Background(), 1, &dto.SendMessageReq{
		ConversationID: convID,
		MsgType:        9,
		Content:        "hi",
	})
	assert.ErrorIs(t, err, ErrParamInvalid)
	assert.Empty(t, f.msgRepo.saved)
}

func TestSendMessageConcurrentSendersPreserveOrder(t *testing.T) {
	f := newChatFixture()
	convID := f.seedDirect(t)

	const senders = 8
	const perSender = 50

	// 接收端缓冲要容下全部事件，丢弃会让断言失真
	bob := realtime.NewConnection(nil, 2, senders*perSender*2+16)
	f.registry.Register(bob)

	var wg sync.WaitGroup
	for g := 0; g < senders; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				_, err := f.svc.SendMessage(context.Background(), 1, &dto.SendMessageReq{
					ConversationID: convID,
					MsgType:        1,
					Content:        "m",
				})
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	// 接收方观察到的 NEW_MESSAGE Seq 必须严格递增
	var seqs []uint64
	for {
		select {
		case data := <-bob.Outbox():
			var env realtime.Envelope
			require.NoError(t, json.Unmarshal(data, &env))
			if env.Event != realtime.EventNewMessage {
				continue
			}
			var ev dto.NewMessageEvent
			require.NoError(t, json.Unmarshal(env.Payload, &ev))
			seqs = append(seqs, ev.Message.Seq)
		default:
			require.Len(t, seqs, senders*perSender)
			for i := 1; i < len(seqs); i++ {
				require.Greater(t, seqs[i], seqs[i-1], "乱序: 位置 %d", i)
			}
			return
		}
	}
}

func TestSendMessagePersistFailureAfterFanout(t *testing.T) {
	f := newChatFixture()
	convID := f.seedDirect(t)
	f.msgRepo.failSave = true
	bob := f.connect(2)

	_, err := f.svc.SendMessage(context.Background(), 1, &dto.SendMessageReq{
		ConversationID: convID,
		MsgType:        1,
		Content:        "doomed",
	})
	assert.ErrorIs(t, err, ErrPersistenceFailure)

	// 扇出先于持久化，接收方已经收到消息
	assert.Contains(t, nextEvents(bob), realtime.EventNewMessage)
}

func TestSendMessageStopsTyping(t *testing.T) {
	f := newChatFixture()
	convID := f.seedDirect(t)
	bob := f.connect(2)

	f.typing.StartTyping(convID, 1, []uint64{2})
	nextEvents(bob)

	_, err := f.svc.SendMessage(context.Background(), 1, &dto.SendMessageReq{
		ConversationID: convID,
		MsgType:        1,
		Content:        "done typing",
	})
	require.NoError(t, err)

	assert.Contains(t, nextEvents(bob), realtime.EventStopTyping)
}

func TestGetOrCreateDirectIsSymmetric(t *testing.T) {
	f := newChatFixture()

	id1, err := f.svc.GetOrCreateDirect(context.Background(), 1, 2)
	require.NoError(t, err)
	id2, err := f.svc.GetOrCreateDirect(context.Background(), 2, 1)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	_, err = f.svc.GetOrCreateDirect(context.Background(), 1, 1)
	assert.ErrorIs(t, err, ErrTargetUserInvalid)
}

func TestGetChatHistoryPagination(t *testing.T) {
	f := newChatFixture()
	convID := f.seedDirect(t)

	for i := 0; i < 25; i++ {
		_, err := f.svc.SendMessage(context.Background(), 1, &dto.SendMessageReq{
			ConversationID: convID,
			MsgType:        1,
			Content:        "m",
		})
		require.NoError(t, err)
	}

	// 最新一页：seq 16..25 升序
	page, err := f.svc.GetChatHistory(context.Background(), 2, convID, 0, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 10)
	assert.True(t, page.HasMore)
	assert.Equal(t, uint64(16), page.Messages[0].Seq)
	assert.Equal(t, uint64(25), page.Messages[9].Seq)

	// 向后翻页，游标为页首 seq
	page, err = f.svc.GetChatHistory(context.Background(), 2, convID, 16, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 10)
	assert.True(t, page.HasMore)
	assert.Equal(t, uint64(6), page.Messages[0].Seq)

	// 最早一页不足整页
	page, err = f.svc.GetChatHistory(context.Background(), 2, convID, 6, 10)
	require.NoError(t, err)
	require.Len(t, page.Messages, 5)
	assert.False(t, page.HasMore)
	assert.Equal(t, uint64(1), page.Messages[0].Seq)
}

func TestGetChatHistoryRequiresMembership(t *testing.T) {
	f := newChatFixture()
	convID := f.seedDirect(t)

	_, err := f.svc.GetChatHistory(context.Background(), 99, convID, 0, 10)
	assert.ErrorIs(t, err, ErrNotAMember)
}

func TestMarkAsReadClampsToLatest(t *testing.T) {
	f := newChatFixture()
	convID := f.seedDirect(t)

	for i := 0; i < 3; i++ {
		_, err := f.svc.SendMessage(context.Background(), 1, &dto.SendMessageReq{
			ConversationID: convID,
			MsgType:        1,
			Content:        "m",
		})
		require.NoError(t, err)
	}

	// 超过最新序号时收敛到最新
	require.NoError(t, f.svc.MarkAsRead(context.Background(), 2, convID, 999))
	assert.Equal(t, uint64(3), f.convRepo.readSeqs[[2]uint64{convID, 2}])

	// 0 表示读到最新
	require.NoError(t, f.svc.MarkAsRead(context.Background(), 1, convID, 0))
	assert.Equal(t, uint64(3), f.convRepo.readSeqs[[2]uint64{convID, 1}])
}

func TestCreateGroupValidation(t *testing.T) {
	f := newChatFixture()

	// 含群主不足 3 人
	_, err := f.svc.CreateGroup(context.Background(), 1, &dto.CreateGroupReq{
		Name:      "too small",
		MemberIDs: []uint64{2},
	})
	assert.ErrorIs(t, err, ErrGroupTooSmall)

	convID, err := f.svc.CreateGroup(context.Background(), 1, &dto.CreateGroupReq{
		Name:      "trio",
		MemberIDs: []uint64{2, 3},
	})
	require.NoError(t, err)

	members, _ := f.convRepo.GetMemberIDs(context.Background(), convID)
	assert.ElementsMatch(t, []uint64{1, 2, 3}, members)
}

func TestCreateGroupDeduplicatesCreator(t *testing.T) {
	f := newChatFixture()

	// 群主出现在成员列表里不重复计数
	convID, err := f.svc.CreateGroup(context.Background(), 1, &dto.CreateGroupReq{
		Name:      "dedup",
		MemberIDs: []uint64{1, 2, 3},
	})
	require.NoError(t, err)

	members, _ := f.convRepo.GetMemberIDs(context.Background(), convID)
	assert.ElementsMatch(t, []uint64{1, 2, 3}, members)
}

func TestRemoveMemberRequiresCreator(t *testing.T) {
	f := newChatFixture()

	convID, err := f.svc.CreateGroup(context.Background(), 1, &dto.CreateGroupReq{
		Name:      "g",
		MemberIDs: []uint64{2, 3},
	})
	require.NoError(t, err)

	err = f.svc.RemoveMember(context.Background(), 2, convID, 3)
	assert.ErrorIs(t, err, UnauthorizedError)

	require.NoError(t, f.svc.RemoveMember(context.Background(), 1, convID, 3))
	members, _ := f.convRepo.GetMemberIDs(context.Background(), convID)
	assert.ElementsMatch(t, []uint64{1, 2}, members)
}

func TestDeleteConversationRemovesMessages(t *testing.T) {
	f := newChatFixture()
	convID := f.seedDirect(t)
	bob := f.connect(2)

	_, err := f.svc.SendMessage(context.Background(), 1, &dto.SendMessageReq{
		ConversationID: convID,
		MsgType:        1,
		Content:        "ephemeral",
	})
	require.NoError(t, err)
	nextEvents(bob)

	require.NoError(t, f.svc.DeleteConversation(context.Background(), 1, convID))

	assert.Empty(t, f.msgRepo.saved)
	_, err = f.convRepo.GetConversation(context.Background(), convID)
	assert.Error(t, err)
	assert.Contains(t, nextEvents(bob), realtime.EventRefetchChats)
}
