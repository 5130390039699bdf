package protocol

// Magic is the first byte of every request.
const Magic = 0xC8

// Opcode identifies a server operation. One request carries exactly one opcode.
type Opcode byte

const (
	CmdPut      Opcode = 0x10 // unconditional upsert
	CmdPutKeep  Opcode = 0x11 // store only if the key is absent
	CmdPutCat   Opcode = 0x12 // append to the stored value
	CmdPutSHL   Opcode = 0x13 // append, then truncate from the left
	CmdPutNR    Opcode = 0x18 // store without waiting for a response
	CmdOut      Opcode = 0x20 // delete
	CmdGet      Opcode = 0x30 // fetch one value
	CmdMGet     Opcode = 0x31 // fetch many values
	CmdVSiz     Opcode = 0x38 // size of the stored value
	CmdIterInit Opcode = 0x50 // reset the connection's key cursor
	CmdIterNext Opcode = 0x51 // next key from the cursor
	CmdFwmKeys  Opcode = 0x58 // forward-matching key scan
	CmdAddInt   Opcode = 0x60 // atomic integer increment
	CmdAddDbl   Opcode = 0x61 // atomic double increment
	CmdExt      Opcode = 0x68 // call a server-side extension function
	CmdSync     Opcode = 0x70 // sync the database to disk
	CmdVanish   Opcode = 0x72 // remove all records
	CmdCopy     Opcode = 0x73 // hot-copy the database file
	CmdRestore  Opcode = 0x74 // restore from the update log
	CmdSetMst   Opcode = 0x78 // set the replication master
	CmdRNum     Opcode = 0x80 // record count
	CmdSize     Opcode = 0x81 // database size in bytes
	CmdStat     Opcode = 0x88 // server statistics blob
	CmdMisc     Opcode = 0x90 // generic multi-value command
)

// Table query operators, sent as the second field of an "addcond" argument.
const (
	QCStrEq    = 0  // string is equal to
	QCStrInc   = 1  // string includes
	QCStrBW    = 2  // string begins with
	QCStrEW    = 3  // string ends with
	QCStrAnd   = 4  // string includes all tokens in
	QCStrOr    = 5  // string includes at least one token in
	QCStrOrEq  = 6  // string is equal to at least one token in
	QCStrRX    = 7  // string matches regular expression of
	QCNumEq    = 8  // number is equal to
	QCNumGT    = 9  // number is greater than
	QCNumGE    = 10 // number is greater than or equal to
	QCNumLT    = 11 // number is less than
	QCNumLE    = 12 // number is less than or equal to
	QCNumBT    = 13 // number is between two tokens of
	QCNumOrEq  = 14 // number is equal to at least one token in
	QCFTSPhr   = 15 // full-text search with a phrase
	QCFTSAnd   = 16 // full-text search with all tokens in
	QCFTSOr    = 17 // full-text search with at least one token in
	QCFTSEx    = 18 // full-text search with a compound expression

	// Modifier bits combined with the operators above.
	QCNegate = 1 << 24 // negate the condition
	QCNoIdx  = 1 << 25 // do not use an index
)

// Result ordering for the "setorder" search argument.
const (
	OrderStrAsc  = 0 // lexical ascending
	OrderStrDesc = 1 // lexical descending
	OrderNumAsc  = 2 // numeric ascending
	OrderNumDesc = 3 // numeric descending
)

// Metasearch set operations for the "mstype" search argument.
const (
	MSUnion = 0 // union of the result sets
	MSIsect = 1 // intersection of the result sets
	MSDiff  = 2 // difference of the result sets
)

// Option bits for Misc.
const (
	MiscNoUpdateLog = 1 // omit the operation from the update log
)

// Option bits for Ext.
const (
	ExtLockRecord = 1 // lock the record while the function runs
	ExtLockGlobal = 2 // lock the whole database while the function runs
)

// Index types for SetIndex.
const (
	IndexLexical = 0    // lexical string index
	IndexDecimal = 1    // decimal number index
	IndexToken   = 2    // token inverted index
	IndexQGram   = 3    // q-gram inverted index
	IndexOpt     = 9998 // optimize the existing index
	IndexVoid    = 9999 // remove the index

	IndexKeep = 1 << 24 // fail instead of overwriting an existing index
)
