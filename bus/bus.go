// bus.go
package bus

import (
	"context"
	"strconv"
	"sync"
)

// -----------------------------------------------------------------------------
// Tokens + Topics
// -----------------------------------------------------------------------------

// Token is a single element in a topic path. Tokens must be comparable
// (strings and small ints in practice). "+" matches exactly one level,
// "#" matches the remainder of the path including zero levels.
type Token = any

const (
	WildcardOne  = "+"
	WildcardRest = "#"
)

// Topic is a sequence of tokens.
type Topic []Token

// T builds a topic, panicking early on non-comparable tokens instead of
// failing later inside the trie.
func T(tokens ...Token) Topic {
	for _, tok := range tokens {
		_ = map[Token]struct{}{tok: {}}
	}
	return Topic(tokens)
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
	ReplyTo  Topic
}

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection // owning connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// -----------------------------------------------------------------------------
// Trie node
// -----------------------------------------------------------------------------

type node struct {
	children map[Token]*node
	subs     []*Subscription
	retained *Message
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type Bus struct {
	mu     sync.Mutex
	root   *node
	qLen   int
	reqSeq uint64
}

// NewBus creates a bus; queueLen is the per-subscription buffer depth.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

// NewMessage is a convenience constructor.
func (b *Bus) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

// Publish delivers a message to every subscription whose pattern matches the
// (concrete) topic, then stores or clears the retained copy.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	match(b.root, msg.Topic, 0, msg)

	if !msg.Retained {
		return
	}
	n := b.root
	for _, tok := range msg.Topic {
		if n.children == nil {
			n.children = make(map[Token]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	if msg.Payload == nil {
		n.retained = nil // nil payload clears the retained slot
	} else {
		n.retained = msg
	}
}

func match(n *node, topic Topic, i int, msg *Message) {
	if rest, ok := n.children[Token(WildcardRest)]; ok {
		for _, sub := range rest.subs {
			offer(sub, msg)
		}
	}
	if i == len(topic) {
		for _, sub := range n.subs {
			offer(sub, msg)
		}
		return
	}
	if child, ok := n.children[topic[i]]; ok {
		match(child, topic, i+1, msg)
	}
	if child, ok := n.children[Token(WildcardOne)]; ok {
		match(child, topic, i+1, msg)
	}
}

// offer is a non-blocking send that drops the oldest queued message when the
// subscriber queue is full. Slow consumers lose history, never block the bus.
func offer(sub *Subscription, msg *Message) {
	select {
	case sub.ch <- msg:
	default:
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- msg:
		default:
		}
	}
}

// addSubscription inserts a subscription and delivers retained messages its
// (possibly wildcarded) pattern matches.
func (b *Bus) addSubscription(topic Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range topic {
		if n.children == nil {
			n.children = make(map[Token]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)

	deliverRetained(b.root, topic, 0, sub)
}

func deliverRetained(n *node, pattern Topic, i int, sub *Subscription) {
	if i == len(pattern) {
		if n.retained != nil {
			offer(sub, n.retained)
		}
		return
	}
	switch pattern[i] {
	case Token(WildcardRest):
		deliverSubtree(n, sub)
	case Token(WildcardOne):
		for _, child := range n.children {
			deliverRetained(child, pattern, i+1, sub)
		}
	default:
		if child, ok := n.children[pattern[i]]; ok {
			deliverRetained(child, pattern, i+1, sub)
		}
	}
}

func deliverSubtree(n *node, sub *Subscription) {
	if n.retained != nil {
		offer(sub, n.retained)
	}
	for _, child := range n.children {
		deliverSubtree(child, sub)
	}
}

// removeSubscription detaches a subscription and closes its channel while the
// lock is held, so a concurrent Publish can never send on a closed channel.
func (b *Bus) removeSubscription(topic Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	path := make([]*node, 0, len(topic))
	for _, tok := range topic {
		child, ok := n.children[tok]
		if !ok {
			return
		}
		path = append(path, n)
		n = child
	}

	removed := false
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		return
	}
	close(sub.ch)

	// Prune now-empty nodes bottom-up.
	for i := len(topic) - 1; i >= 0; i-- {
		child := path[i].children[topic[i]]
		if len(child.subs) != 0 || len(child.children) != 0 || child.retained != nil {
			break
		}
		delete(path[i].children, topic[i])
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

// NewConnection creates a connection bound to this bus. The id seeds reply
// topics and should be unique per client.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

// NewMessage is a convenience constructor.
func (c *Connection) NewMessage(topic Topic, payload any, retained bool) *Message {
	return &Message{Topic: topic, Payload: payload, Retained: retained}
}

func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.bus.addSubscription(topic, sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.removeSubscription(sub.topic, sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
}

// Disconnect tears down all subscriptions owned by this connection.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		c.bus.removeSubscription(sub.topic, sub)
	}
}

// -----------------------------------------------------------------------------
// Request / Reply
// -----------------------------------------------------------------------------

// Request sets a fresh ReplyTo on req, subscribes to it, and publishes.
// The caller reads the reply from the returned subscription and unsubscribes.
func (c *Connection) Request(req *Message) *Subscription {
	c.bus.mu.Lock()
	c.bus.reqSeq++
	seq := c.bus.reqSeq
	c.bus.mu.Unlock()

	req.ReplyTo = Topic{"$reply", c.id, strconv.FormatUint(seq, 10)}
	sub := c.Subscribe(req.ReplyTo)
	c.bus.Publish(req)
	return sub
}

// RequestWait performs Request and blocks for a single reply or ctx expiry.
func (c *Connection) RequestWait(ctx context.Context, req *Message) (*Message, error) {
	sub := c.Request(req)
	defer c.Unsubscribe(sub)
	select {
	case m := <-sub.ch:
		return m, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply answers a request on its ReplyTo topic. No-op when the request did
// not ask for a reply.
func (c *Connection) Reply(req *Message, payload any, retained bool) {
	if len(req.ReplyTo) == 0 {
		return
	}
	c.Publish(&Message{Topic: req.ReplyTo, Payload: payload, Retained: retained})
}
