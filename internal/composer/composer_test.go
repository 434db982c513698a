package composer

import (
	"testing"

	"gigchat/internal/attachment"
	"gigchat/internal/model"
)

func newComposer() *Composer {
	return New(attachment.NewCodec(func(attachment.File) error { return nil }, nil))
}

var (
	ctx      = Context{ConversationID: "conv-1", GigID: "gig-1", SellerID: "seller-1", BuyerID: "buyer-1"}
	alice    = Identity{Username: "Alice", Picture: "https://cdn.example/alice.png"}
	bob      = Identity{Username: "Bob", Picture: "https://cdn.example/bob.png"}
	anyOffer = model.Offer{GigTitle: "Logo design", Price: 50, DeliveryInDays: 3}
)

// TestBuild_EmptyDraft 空の下書きは送信しない
func TestBuild_EmptyDraft(t *testing.T) {
	c := newComposer()

	if _, ok := c.Build(ctx, alice, bob); ok {
		t.Error("Empty draft should not build a message")
	}
}

// TestBuild_Text 本文のみのメッセージ
func TestBuild_Text(t *testing.T) {
	c := newComposer()
	c.SetBody("Hello Bob")

	msg, ok := c.Build(ctx, alice, bob)
	if !ok {
		t.Fatal("Expected message to be built")
	}

	if msg.Body != "Hello Bob" {
		t.Errorf("Expected body 'Hello Bob', got %q", msg.Body)
	}
	if msg.ConversationID != "conv-1" || !msg.HasConversationID {
		t.Errorf("Conversation id should be reused: %+v", msg)
	}
	if msg.GigID != "gig-1" || msg.SellerID != "seller-1" || msg.BuyerID != "buyer-1" {
		t.Errorf("Thread identifiers not copied: %+v", msg)
	}
	if msg.SenderUsername != "Alice" || msg.ReceiverUsername != "Bob" || msg.ReceiverPicture != bob.Picture {
		t.Errorf("Identities not copied: %+v", msg)
	}
	if msg.IsRead || msg.HasOffer {
		t.Error("Plain sends must be unread and carry no offer")
	}
	if c.Body() != "Hello Bob" {
		t.Error("Build must not consume the draft")
	}
}

// TestBuild_FileOnly ファイルのみでも送信対象になる
func TestBuild_FileOnly(t *testing.T) {
	c := newComposer()
	if err := c.Codec().Select(attachment.NewFile("a.txt", []byte("x"))); err != nil {
		t.Fatalf("Select failed: %v", err)
	}

	msg, ok := c.Build(ctx, alice, bob)
	if !ok {
		t.Fatal("Draft with a staged file should build")
	}
	if msg.Body != "" || msg.File != "" {
		t.Error("Build leaves body and file encoding to the outbox")
	}
}

// TestBuild_FirstMessage 会話IDがない場合は hasConversationId=false
func TestBuild_FirstMessage(t *testing.T) {
	c := newComposer()
	c.SetBody("Hi")

	msg, _ := c.Build(ContextFrom(nil), alice, bob)
	if msg.HasConversationID || msg.ConversationID != "" {
		t.Errorf("First message must not claim a conversation: %+v", msg)
	}
}

// TestBuildOffer オファーメッセージ
func TestBuildOffer(t *testing.T) {
	c := newComposer()

	msg := c.BuildOffer(ctx, bob, alice, anyOffer)
	if !msg.HasOffer || msg.Offer == nil || msg.Offer.Price != 50 {
		t.Errorf("Offer not attached: %+v", msg)
	}
	if msg.Body != OfferBody {
		t.Errorf("Expected offer body placeholder, got %q", msg.Body)
	}
	if err := msg.Validate(); err != nil {
		t.Errorf("Offer message should validate: %v", err)
	}

	c.SetBody("Custom terms inside")
	if got := c.BuildOffer(ctx, bob, alice, anyOffer).Body; got != "Custom terms inside" {
		t.Errorf("Draft text should be used as offer body, got %q", got)
	}
}

// TestReset 下書きと添付をクリア
func TestReset(t *testing.T) {
	c := newComposer()
	c.SetBody("draft")
	_ = c.Codec().Select(attachment.NewFile("a.txt", []byte("x")))

	c.Reset()

	if !c.Empty() || c.Codec().PreviewVisible() {
		t.Error("Reset should clear text, attachment and preview")
	}
}

// TestContextFrom 直近メッセージからの識別子
func TestContextFrom(t *testing.T) {
	m := &model.Message{ConversationID: "c", GigID: "g", SellerID: "s", BuyerID: "b"}
	if got := ContextFrom(m); got != (Context{ConversationID: "c", GigID: "g", SellerID: "s", BuyerID: "b"}) {
		t.Errorf("Unexpected context %+v", got)
	}
}
