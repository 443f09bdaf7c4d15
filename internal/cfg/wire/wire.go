// Package wire serializes control-flow graphs to a structured binary
// format.
//
// The wire schema mirrors the cfg package with explicit kind tags on
// instructions, so decoders in other tools can dispatch without knowing
// the Go type system. Encoding is msgpack; every message is a plain struct
// with field tags, and the instruction visitor is a type switch over the
// closed cfg.Instruction set. Instruction variants the schema does not
// know map to KindUnknown rather than failing the whole document.
package wire

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/che-burashco/sorbet/internal/cfg"
)

// Kind tags an instruction message with its variant.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindIdent
	KindAlias
	KindSend
	KindReturn
	KindLiteral
	KindUnanalyzable
	KindLoadArg
	KindCast
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindIdent:
		return "ident"
	case KindAlias:
		return "alias"
	case KindSend:
		return "send"
	case KindReturn:
		return "return"
	case KindLiteral:
		return "literal"
	case KindUnanalyzable:
		return "unanalyzable"
	case KindLoadArg:
		return "load_arg"
	case KindCast:
		return "cast"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// Location is a source range.
type Location struct {
	File      string `msgpack:"file"`
	BeginLine int    `msgpack:"begin_line"`
	BeginCol  int    `msgpack:"begin_col"`
	EndLine   int    `msgpack:"end_line"`
	EndCol    int    `msgpack:"end_col"`
}

// TypedVariable is a variable use with its inferred type and, optionally,
// its location.
type TypedVariable struct {
	Name string    `msgpack:"name"`
	Type string    `msgpack:"type,omitempty"`
	Loc  *Location `msgpack:"loc,omitempty"`
}

// SendDetail carries the fields specific to a method call.
type SendDetail struct {
	Receiver TypedVariable   `msgpack:"receiver"`
	Method   string          `msgpack:"method"`
	Args     []TypedVariable `msgpack:"args,omitempty"`
	HasBlock bool            `msgpack:"has_block,omitempty"`
}

// LoadArgDetail carries the fields specific to an argument load.
type LoadArgDetail struct {
	Name string `msgpack:"name"`
	Type string `msgpack:"type,omitempty"`
}

// CastDetail carries the fields specific to a type assertion.
type CastDetail struct {
	Value TypedVariable `msgpack:"value"`
	Type  string        `msgpack:"type"`
}

// Instruction is the tagged union over instruction variants. Exactly the
// field matching Kind is populated.
type Instruction struct {
	Kind    Kind           `msgpack:"kind"`
	Ident   string         `msgpack:"ident,omitempty"`
	Alias   string         `msgpack:"alias,omitempty"`
	Send    *SendDetail    `msgpack:"send,omitempty"`
	Return  *TypedVariable `msgpack:"return,omitempty"`
	Literal string         `msgpack:"literal,omitempty"`
	LoadArg *LoadArgDetail `msgpack:"load_arg,omitempty"`
	Cast    *CastDetail    `msgpack:"cast,omitempty"`
}

// Binding is one bound instruction.
type Binding struct {
	Bind  TypedVariable `msgpack:"bind"`
	Instr Instruction   `msgpack:"instr"`
}

// BlockExit is a block's terminating jump. Then and Else use cfg.NoBlock
// for absent successors.
type BlockExit struct {
	Cond *TypedVariable `msgpack:"cond,omitempty"`
	Then int            `msgpack:"then"`
	Else int            `msgpack:"else"`
	Loc  Location       `msgpack:"loc"`
}

// Block is one basic block.
type Block struct {
	ID       int       `msgpack:"id"`
	Bindings []Binding `msgpack:"bindings,omitempty"`
	Exit     BlockExit `msgpack:"exit"`
}

// Argument is a method parameter.
type Argument struct {
	Name string `msgpack:"name"`
	Type string `msgpack:"type,omitempty"`
}

// Document is the wire form of one method's CFG.
type Document struct {
	Symbol  string     `msgpack:"symbol"`
	Loc     Location   `msgpack:"loc"`
	Returns string     `msgpack:"returns,omitempty"`
	Args    []Argument `msgpack:"args,omitempty"`
	Blocks  []Block    `msgpack:"blocks"`
}

func fromLoc(l cfg.Loc) Location {
	return Location{
		File:      l.File,
		BeginLine: l.BeginLine,
		BeginCol:  l.BeginCol,
		EndLine:   l.EndLine,
		EndCol:    l.EndCol,
	}
}

func fromVariable(v cfg.VariableUseSite, loc *cfg.Loc) TypedVariable {
	tv := TypedVariable{Name: v.Variable, Type: v.Type}
	if loc != nil {
		l := fromLoc(*loc)
		tv.Loc = &l
	}
	return tv
}

// fromInstruction dispatches over the closed instruction set. Variants
// added to cfg without a wire mapping degrade to KindUnknown.
func fromInstruction(instr cfg.Instruction) Instruction {
	switch i := instr.(type) {
	case cfg.Ident:
		return Instruction{Kind: KindIdent, Ident: i.What}
	case cfg.Alias:
		return Instruction{Kind: KindAlias, Alias: i.What}
	case cfg.Send:
		detail := &SendDetail{
			Receiver: fromVariable(i.Receiver, &i.ReceiverLoc),
			Method:   i.Method,
			HasBlock: i.HasBlock,
		}
		for j := range i.Args {
			var loc *cfg.Loc
			if j < len(i.ArgLocs) {
				loc = &i.ArgLocs[j]
			}
			detail.Args = append(detail.Args, fromVariable(i.Args[j], loc))
		}
		return Instruction{Kind: KindSend, Send: detail}
	case cfg.Return:
		tv := fromVariable(i.What, nil)
		return Instruction{Kind: KindReturn, Return: &tv}
	case cfg.Literal:
		return Instruction{Kind: KindLiteral, Literal: i.Value}
	case cfg.Unanalyzable:
		return Instruction{Kind: KindUnanalyzable}
	case cfg.LoadArg:
		return Instruction{Kind: KindLoadArg, LoadArg: &LoadArgDetail{Name: i.Name, Type: i.Type}}
	case cfg.Cast:
		return Instruction{Kind: KindCast, Cast: &CastDetail{Value: fromVariable(i.Value, nil), Type: i.Type}}
	default:
		return Instruction{Kind: KindUnknown}
	}
}

func fromExit(e cfg.BlockExit) BlockExit {
	exit := BlockExit{Then: e.Then, Else: e.Else, Loc: fromLoc(e.Loc)}
	if e.Cond != nil {
		tv := fromVariable(*e.Cond, nil)
		exit.Cond = &tv
	}
	return exit
}

// FromCFG lowers a control-flow graph into its wire document.
func FromCFG(c *cfg.CFG) *Document {
	doc := &Document{
		Symbol:  c.Symbol,
		Loc:     fromLoc(c.Loc),
		Returns: c.Returns,
	}
	for _, a := range c.Args {
		doc.Args = append(doc.Args, Argument{Name: a.Name, Type: a.Type})
	}
	for _, b := range c.Blocks {
		block := Block{ID: b.ID, Exit: fromExit(b.Exit)}
		for _, bnd := range b.Bindings {
			block.Bindings = append(block.Bindings, Binding{
				Bind:  fromVariable(bnd.Bind, &bnd.Loc),
				Instr: fromInstruction(bnd.Instr),
			})
		}
		doc.Blocks = append(doc.Blocks, block)
	}
	return doc
}

// MarshalBinary encodes the document as msgpack.
func (d *Document) MarshalBinary() ([]byte, error) {
	// Encode through a method-less alias: msgpack prefers BinaryMarshaler,
	// so passing d itself would call back into this method.
	type plainDocument Document
	b, err := msgpack.Marshal((*plainDocument)(d))
	if err != nil {
		return nil, fmt.Errorf("wire: encoding %s: %w", d.Symbol, err)
	}
	return b, nil
}

// Decode parses a msgpack-encoded document.
func Decode(b []byte) (*Document, error) {
	var d Document
	if err := msgpack.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("wire: decoding document: %w", err)
	}
	return &d, nil
}
