package engine

import "sync"

type requestType int

const (
	requestSubmit requestType = iota
	requestPlace
	requestCancel
	requestInject
	requestQuery
	requestStop
)

type bookRequest struct {
	typ   requestType
	tick  Tick
	id    string
	ts    int64
	query func(*OrderBook)
	resp  chan bookResponse
}

type bookResponse struct {
	trades   []Trade
	injected int
	err      error
}

// Matcher serializes every operation on one OrderBook through a single
// worker goroutine, so the book has exactly one active matcher no matter how
// many goroutines call in. Executed trades and top-of-book changes are
// published on buffered streams; slow readers miss updates rather than
// stalling matching.
type Matcher struct {
	book     *OrderBook
	reqCh    chan bookRequest
	trades   chan Trade
	updates  chan BookView
	done     chan struct{}
	stopOnce sync.Once
}

// NewMatcher takes ownership of book and launches the worker loop. buffer
// sizes the request queue and both output streams.
func NewMatcher(book *OrderBook, buffer int) *Matcher {
	if buffer < 1 {
		buffer = 1
	}
	m := &Matcher{
		book:    book,
		reqCh:   make(chan bookRequest, buffer),
		trades:  make(chan Trade, buffer),
		updates: make(chan BookView, buffer),
		done:    make(chan struct{}),
	}
	go m.run()
	return m
}

// Submit runs t through the book's full submission pipeline.
func (m *Matcher) Submit(t Tick) ([]Trade, error) {
	resp := m.do(bookRequest{typ: requestSubmit, tick: t})
	return resp.trades, resp.err
}

// SubmitBid submits a buy order.
func (m *Matcher) SubmitBid(ts int64, id string, qty, price float64) ([]Trade, error) {
	return m.Submit(NewTick(ts, id, Bid, qty, price))
}

// SubmitAsk submits a sell order.
func (m *Matcher) SubmitAsk(ts int64, id string, qty, price float64) ([]Trade, error) {
	return m.Submit(NewTick(ts, id, Ask, qty, price))
}

// Place rests t without splitting, cancellation or matching.
func (m *Matcher) Place(t Tick) error {
	return m.do(bookRequest{typ: requestPlace, tick: t}).err
}

// CancelOrder cancels a resting order by id.
func (m *Matcher) CancelOrder(id string) error {
	return m.do(bookRequest{typ: requestCancel, id: id}).err
}

// InjectLiquidity forwards to the book's liquidity provider.
func (m *Matcher) InjectLiquidity(ts int64) int {
	return m.do(bookRequest{typ: requestInject, ts: ts}).injected
}

// Query runs fn on the worker goroutine. fn must not retain the book.
func (m *Matcher) Query(fn func(*OrderBook)) error {
	return m.do(bookRequest{typ: requestQuery, query: fn}).err
}

// MidPrice returns the book's mid price.
func (m *Matcher) MidPrice() (mid float64, ok bool) {
	_ = m.Query(func(b *OrderBook) { mid, ok = b.MidPrice() })
	return mid, ok
}

// Stats returns the book's numerical output.
func (m *Matcher) Stats() (s Stats, err error) {
	err = m.Query(func(b *OrderBook) { s = b.NumericalOutput() })
	return s, err
}

// Depth returns up to n levels per side.
func (m *Matcher) Depth(n int) (d DepthSnapshot, err error) {
	err = m.Query(func(b *OrderBook) { d = b.Depth(n) })
	return d, err
}

// View returns the top of book.
func (m *Matcher) View() (v BookView, err error) {
	err = m.Query(func(b *OrderBook) { v = b.View() })
	return v, err
}

// RecentTrades returns up to limit of the latest trades, oldest first.
func (m *Matcher) RecentTrades(limit int) (out []Trade, err error) {
	err = m.Query(func(b *OrderBook) {
		start := 0
		if limit > 0 && len(b.trades) > limit {
			start = len(b.trades) - limit
		}
		out = make([]Trade, len(b.trades)-start)
		copy(out, b.trades[start:])
	})
	return out, err
}

// Trades exposes the stream of executed trades.
func (m *Matcher) Trades() <-chan Trade {
	return m.trades
}

// BookUpdates exposes the stream of top-of-book updates.
func (m *Matcher) BookUpdates() <-chan BookView {
	return m.updates
}

// Stop terminates the worker loop and closes both streams. It is safe to
// call more than once.
func (m *Matcher) Stop() {
	m.stopOnce.Do(func() {
		select {
		case m.reqCh <- bookRequest{typ: requestStop}:
		case <-m.done:
		}
		<-m.done
	})
}

func (m *Matcher) do(req bookRequest) bookResponse {
	req.resp = make(chan bookResponse, 1)
	select {
	case m.reqCh <- req:
	case <-m.done:
		return bookResponse{err: ErrBookStopped}
	}
	select {
	case resp := <-req.resp:
		return resp
	case <-m.done:
		return bookResponse{err: ErrBookStopped}
	}
}

func (m *Matcher) run() {
	for req := range m.reqCh {
		switch req.typ {
		case requestSubmit:
			trades, err := m.book.Submit(req.tick)
			req.resp <- bookResponse{trades: trades, err: err}
			if err == nil {
				m.publish(trades)
			}
		case requestPlace:
			err := m.book.Place(req.tick)
			req.resp <- bookResponse{err: err}
			if err == nil {
				m.publishView()
			}
		case requestCancel:
			err := m.book.CancelOrder(req.id)
			req.resp <- bookResponse{err: err}
			if err == nil {
				m.publishView()
			}
		case requestInject:
			n := m.book.InjectLiquidity(req.ts)
			req.resp <- bookResponse{injected: n}
			if n > 0 {
				m.publishView()
			}
		case requestQuery:
			req.query(m.book)
			req.resp <- bookResponse{}
		case requestStop:
			close(m.trades)
			close(m.updates)
			close(m.done)
			return
		}
	}
}

func (m *Matcher) publish(trades []Trade) {
	for _, t := range trades {
		select {
		case m.trades <- t:
		default:
		}
	}
	m.publishView()
}

func (m *Matcher) publishView() {
	view := m.book.View()
	select {
	case m.updates <- view:
	default:
	}
}
