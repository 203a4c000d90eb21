// Package main builds the Amazon Timestream ODBC driver as a shared library.
//
// The exported functions only marshal C arguments; handle state, result
// fetching and diagnostics live in internal/odbc.
//
// Build:
//
//	go build -buildmode=c-shared -o libtsodbc.so ./odbc
//
// Register the driver with unixODBC (odbcinst.ini):
//
//	[Amazon Timestream]
//	Description = Amazon Timestream ODBC Driver
//	Driver = /path/to/libtsodbc.so
//
// Data sources are read from $TSODBC_DSN_FILE or ~/.tsodbc/dsn.yml.
package main

/*
#include <stdlib.h>
#include <string.h>

typedef void* SQLHENV;
typedef void* SQLHDBC;
typedef void* SQLHSTMT;
typedef void* SQLHANDLE;
typedef void* SQLHWND;
typedef short SQLSMALLINT;
typedef unsigned short SQLUSMALLINT;
typedef int SQLINTEGER;
typedef unsigned int SQLUINTEGER;
typedef unsigned char SQLUCHAR;
typedef long SQLLEN;
typedef unsigned long SQLULEN;
typedef void* SQLPOINTER;
typedef SQLSMALLINT SQLRETURN;

#define SQL_SUCCESS 0
#define SQL_SUCCESS_WITH_INFO 1
#define SQL_ERROR -1
#define SQL_INVALID_HANDLE -2
#define SQL_NO_DATA 100

#define SQL_HANDLE_ENV 1
#define SQL_HANDLE_DBC 2
#define SQL_HANDLE_STMT 3

#define SQL_NTS -3

#define SQL_ATTR_ROWS_FETCHED_PTR 26
*/
import "C"

import (
	"context"
	"unsafe"

	"github.com/sirupsen/logrus"

	"github.com/SimonWaldherr/tsodbc/internal/config"
	"github.com/SimonWaldherr/tsodbc/internal/convert"
	handles "github.com/SimonWaldherr/tsodbc/internal/odbc"
)

var reg = newRegistry()

func newRegistry() *handles.Registry {
	path := config.DefaultDSNFilePath()
	f, err := config.LoadDSNFile(path)
	if err != nil {
		logrus.WithError(err).WithField("path", path).Warn("tsodbc: ignoring dsn file")
		return handles.NewRegistry()
	}
	return handles.NewRegistry(handles.WithDSNSource(f))
}

func ret(rc handles.Return) C.SQLRETURN { return C.SQLRETURN(rc) }

func handleOf(p unsafe.Pointer) handles.Handle { return handles.Handle(uintptr(p)) }

func stmtOf(h C.SQLHSTMT) *handles.Statement { return reg.Stmt(handleOf(unsafe.Pointer(h))) }

func connOf(h C.SQLHDBC) *handles.Connection { return reg.Conn(handleOf(unsafe.Pointer(h))) }

// goString reads an input string. n is a byte length or SQL_NTS.
func goString(p *C.SQLUCHAR, n int) string {
	if p == nil {
		return ""
	}
	if n < 0 {
		return C.GoString((*C.char)(unsafe.Pointer(p)))
	}
	return C.GoStringN((*C.char)(unsafe.Pointer(p)), C.int(n))
}

// putString copies s into an output buffer of size bytes, always NUL
// terminated, and reports whether it had to be cut.
func putString(dst unsafe.Pointer, size int, s string) bool {
	if dst == nil || size <= 0 {
		return len(s) > 0 && dst != nil
	}
	buf := unsafe.Slice((*byte)(dst), size)
	n := copy(buf[:size-1], s)
	buf[n] = 0
	return n < len(s)
}

func bytesAt(p C.SQLPOINTER, n C.SQLLEN) []byte {
	if p == nil || n <= 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), int(n))
}

//export SQLAllocHandle
func SQLAllocHandle(handleType C.SQLSMALLINT, inputHandle C.SQLHANDLE, outputHandlePtr *C.SQLHANDLE) C.SQLRETURN {
	if outputHandlePtr == nil {
		return C.SQL_ERROR
	}
	h, rc := reg.Alloc(handles.HandleType(handleType), handleOf(unsafe.Pointer(inputHandle)))
	*outputHandlePtr = C.SQLHANDLE(unsafe.Pointer(uintptr(h)))
	return ret(rc)
}

//export SQLFreeHandle
func SQLFreeHandle(handleType C.SQLSMALLINT, handle C.SQLHANDLE) C.SQLRETURN {
	return ret(reg.Free(handles.HandleType(handleType), handleOf(unsafe.Pointer(handle))))
}

//export SQLFreeStmt
func SQLFreeStmt(statementHandle C.SQLHSTMT, option C.SQLUSMALLINT) C.SQLRETURN {
	if option == handles.FreeDrop {
		return SQLFreeHandle(C.SQL_HANDLE_STMT, C.SQLHANDLE(statementHandle))
	}
	s := stmtOf(statementHandle)
	if s == nil {
		return C.SQL_INVALID_HANDLE
	}
	return ret(s.FreeStmt(int16(option)))
}

//export SQLSetEnvAttr
func SQLSetEnvAttr(environmentHandle C.SQLHENV, attribute C.SQLINTEGER, valuePtr C.SQLPOINTER, stringLength C.SQLINTEGER) C.SQLRETURN {
	e := reg.Env(handleOf(unsafe.Pointer(environmentHandle)))
	if e == nil {
		return C.SQL_INVALID_HANDLE
	}
	return ret(e.SetAttr(int32(attribute), int64(uintptr(unsafe.Pointer(valuePtr)))))
}

//export SQLGetEnvAttr
func SQLGetEnvAttr(environmentHandle C.SQLHENV, attribute C.SQLINTEGER, valuePtr C.SQLPOINTER, bufferLength C.SQLINTEGER, stringLengthPtr *C.SQLINTEGER) C.SQLRETURN {
	e := reg.Env(handleOf(unsafe.Pointer(environmentHandle)))
	if e == nil {
		return C.SQL_INVALID_HANDLE
	}
	v, rc := e.GetAttr(int32(attribute))
	if rc.Succeeded() && valuePtr != nil {
		*(*C.SQLINTEGER)(unsafe.Pointer(valuePtr)) = C.SQLINTEGER(v)
	}
	return ret(rc)
}

//export SQLConnect
func SQLConnect(connectionHandle C.SQLHDBC, serverName *C.SQLUCHAR, nameLength1 C.SQLSMALLINT,
	userName *C.SQLUCHAR, nameLength2 C.SQLSMALLINT, authentication *C.SQLUCHAR, nameLength3 C.SQLSMALLINT) C.SQLRETURN {
	c := connOf(connectionHandle)
	if c == nil {
		return C.SQL_INVALID_HANDLE
	}
	return ret(c.Connect(context.Background(),
		goString(serverName, int(nameLength1)),
		goString(userName, int(nameLength2)),
		goString(authentication, int(nameLength3))))
}

//export SQLDriverConnect
func SQLDriverConnect(connectionHandle C.SQLHDBC, windowHandle C.SQLHWND, inConnectionString *C.SQLUCHAR, stringLength1 C.SQLSMALLINT,
	outConnectionString *C.SQLUCHAR, bufferLength C.SQLSMALLINT, stringLength2Ptr *C.SQLSMALLINT, driverCompletion C.SQLUSMALLINT) C.SQLRETURN {
	c := connOf(connectionHandle)
	if c == nil {
		return C.SQL_INVALID_HANDLE
	}
	out, rc := c.DriverConnect(context.Background(), goString(inConnectionString, int(stringLength1)))
	if !rc.Succeeded() {
		return ret(rc)
	}
	if stringLength2Ptr != nil {
		*stringLength2Ptr = C.SQLSMALLINT(len(out))
	}
	if putString(unsafe.Pointer(outConnectionString), int(bufferLength), out) {
		rc = c.Truncated(rc, "connection string")
	}
	return ret(rc)
}

//export SQLDisconnect
func SQLDisconnect(connectionHandle C.SQLHDBC) C.SQLRETURN {
	c := connOf(connectionHandle)
	if c == nil {
		return C.SQL_INVALID_HANDLE
	}
	return ret(c.Disconnect())
}

//export SQLSetConnectAttr
func SQLSetConnectAttr(connectionHandle C.SQLHDBC, attribute C.SQLINTEGER, valuePtr C.SQLPOINTER, stringLength C.SQLINTEGER) C.SQLRETURN {
	c := connOf(connectionHandle)
	if c == nil {
		return C.SQL_INVALID_HANDLE
	}
	return ret(c.SetAttr(int32(attribute), int64(uintptr(unsafe.Pointer(valuePtr)))))
}

//export SQLGetConnectAttr
func SQLGetConnectAttr(connectionHandle C.SQLHDBC, attribute C.SQLINTEGER, valuePtr C.SQLPOINTER, bufferLength C.SQLINTEGER, stringLengthPtr *C.SQLINTEGER) C.SQLRETURN {
	c := connOf(connectionHandle)
	if c == nil {
		return C.SQL_INVALID_HANDLE
	}
	v, rc := c.GetAttr(int32(attribute))
	if rc.Succeeded() && valuePtr != nil {
		*(*C.SQLUINTEGER)(unsafe.Pointer(valuePtr)) = C.SQLUINTEGER(v)
	}
	return ret(rc)
}

//export SQLEndTran
func SQLEndTran(handleType C.SQLSMALLINT, handle C.SQLHANDLE, completionType C.SQLSMALLINT) C.SQLRETURN {
	switch handleType {
	case C.SQL_HANDLE_ENV:
		if reg.Env(handleOf(unsafe.Pointer(handle))) == nil {
			return C.SQL_INVALID_HANDLE
		}
		return C.SQL_SUCCESS
	case C.SQL_HANDLE_DBC:
		c := connOf(C.SQLHDBC(handle))
		if c == nil {
			return C.SQL_INVALID_HANDLE
		}
		return ret(c.EndTran(int16(completionType)))
	}
	return C.SQL_INVALID_HANDLE
}

//export SQLGetInfo
func SQLGetInfo(connectionHandle C.SQLHDBC, infoType C.SQLUSMALLINT, infoValuePtr C.SQLPOINTER, bufferLength C.SQLSMALLINT, stringLengthPtr *C.SQLSMALLINT) C.SQLRETURN {
	c := connOf(connectionHandle)
	if c == nil {
		return C.SQL_INVALID_HANDLE
	}
	v, rc := c.GetInfo(uint16(infoType))
	if !rc.Succeeded() {
		return ret(rc)
	}
	if v.IsString() {
		if stringLengthPtr != nil {
			*stringLengthPtr = C.SQLSMALLINT(len(v.Str))
		}
		if putString(unsafe.Pointer(infoValuePtr), int(bufferLength), v.Str) {
			rc = c.Truncated(rc, "info value")
		}
		return ret(rc)
	}
	if infoValuePtr != nil {
		if v.Size == 2 {
			*(*C.SQLUSMALLINT)(unsafe.Pointer(infoValuePtr)) = C.SQLUSMALLINT(v.Num)
		} else {
			*(*C.SQLUINTEGER)(unsafe.Pointer(infoValuePtr)) = C.SQLUINTEGER(v.Num)
		}
	}
	if stringLengthPtr != nil {
		*stringLengthPtr = C.SQLSMALLINT(v.Size)
	}
	return ret(rc)
}

//export SQLGetFunctions
func SQLGetFunctions(connectionHandle C.SQLHDBC, functionID C.SQLUSMALLINT, supportedPtr *C.SQLUSMALLINT) C.SQLRETURN {
	if connOf(connectionHandle) == nil {
		return C.SQL_INVALID_HANDLE
	}
	if supportedPtr == nil {
		return C.SQL_ERROR
	}
	switch uint16(functionID) {
	case handles.APIODBC3AllFunctions:
		bm := handles.FunctionBitmap()
		out := unsafe.Slice((*uint16)(unsafe.Pointer(supportedPtr)), len(bm))
		copy(out, bm[:])
	case handles.APIAllFunctions:
		all := handles.LegacyFunctions()
		out := unsafe.Slice((*uint16)(unsafe.Pointer(supportedPtr)), len(all))
		copy(out, all[:])
	default:
		*supportedPtr = 0
		if handles.Supported(uint16(functionID)) {
			*supportedPtr = 1
		}
	}
	return C.SQL_SUCCESS
}

//export SQLPrepare
func SQLPrepare(statementHandle C.SQLHSTMT, statementText *C.SQLUCHAR, textLength C.SQLINTEGER) C.SQLRETURN {
	s := stmtOf(statementHandle)
	if s == nil {
		return C.SQL_INVALID_HANDLE
	}
	return ret(s.Prepare(goString(statementText, int(textLength))))
}

//export SQLExecute
func SQLExecute(statementHandle C.SQLHSTMT) C.SQLRETURN {
	s := stmtOf(statementHandle)
	if s == nil {
		return C.SQL_INVALID_HANDLE
	}
	return ret(s.Execute(context.Background()))
}

//export SQLExecDirect
func SQLExecDirect(statementHandle C.SQLHSTMT, statementText *C.SQLUCHAR, textLength C.SQLINTEGER) C.SQLRETURN {
	s := stmtOf(statementHandle)
	if s == nil {
		return C.SQL_INVALID_HANDLE
	}
	return ret(s.ExecDirect(context.Background(), goString(statementText, int(textLength))))
}

//export SQLFetch
func SQLFetch(statementHandle C.SQLHSTMT) C.SQLRETURN {
	s := stmtOf(statementHandle)
	if s == nil {
		return C.SQL_INVALID_HANDLE
	}
	return ret(s.Fetch())
}

//export SQLGetData
func SQLGetData(statementHandle C.SQLHSTMT, columnNumber C.SQLUSMALLINT, targetType C.SQLSMALLINT,
	targetValuePtr C.SQLPOINTER, bufferLength C.SQLLEN, strLenOrIndPtr *C.SQLLEN) C.SQLRETURN {
	s := stmtOf(statementHandle)
	if s == nil {
		return C.SQL_INVALID_HANDLE
	}
	ct := convert.CType(targetType)
	n := bufferLength
	if fixed := convert.FixedSize(ct); fixed > 0 {
		n = C.SQLLEN(fixed)
	}
	res, rc := s.GetData(int(columnNumber), ct, bytesAt(targetValuePtr, n))
	if rc.Succeeded() && strLenOrIndPtr != nil {
		*strLenOrIndPtr = C.SQLLEN(res.Length)
	}
	return ret(rc)
}

//export SQLBindCol
func SQLBindCol(statementHandle C.SQLHSTMT, columnNumber C.SQLUSMALLINT, targetType C.SQLSMALLINT,
	targetValuePtr C.SQLPOINTER, bufferLength C.SQLLEN, strLenOrIndPtr *C.SQLLEN) C.SQLRETURN {
	s := stmtOf(statementHandle)
	if s == nil {
		return C.SQL_INVALID_HANDLE
	}
	ct := convert.CType(targetType)
	n := bufferLength
	if fixed := convert.FixedSize(ct); fixed > 0 {
		n = C.SQLLEN(fixed)
	}
	return ret(s.BindCol(int(columnNumber), ct, bytesAt(targetValuePtr, n), (*int64)(unsafe.Pointer(strLenOrIndPtr))))
}

//export SQLNumResultCols
func SQLNumResultCols(statementHandle C.SQLHSTMT, columnCountPtr *C.SQLSMALLINT) C.SQLRETURN {
	s := stmtOf(statementHandle)
	if s == nil {
		return C.SQL_INVALID_HANDLE
	}
	n, rc := s.NumResultCols()
	if rc.Succeeded() && columnCountPtr != nil {
		*columnCountPtr = C.SQLSMALLINT(n)
	}
	return ret(rc)
}

//export SQLRowCount
func SQLRowCount(statementHandle C.SQLHSTMT, rowCountPtr *C.SQLLEN) C.SQLRETURN {
	s := stmtOf(statementHandle)
	if s == nil {
		return C.SQL_INVALID_HANDLE
	}
	n, rc := s.RowCount()
	if rc.Succeeded() && rowCountPtr != nil {
		*rowCountPtr = C.SQLLEN(n)
	}
	return ret(rc)
}

//export SQLDescribeCol
func SQLDescribeCol(statementHandle C.SQLHSTMT, columnNumber C.SQLUSMALLINT,
	columnName *C.SQLUCHAR, bufferLength C.SQLSMALLINT, nameLengthPtr *C.SQLSMALLINT,
	dataTypePtr *C.SQLSMALLINT, columnSizePtr *C.SQLULEN, decimalDigitsPtr *C.SQLSMALLINT, nullablePtr *C.SQLSMALLINT) C.SQLRETURN {
	s := stmtOf(statementHandle)
	if s == nil {
		return C.SQL_INVALID_HANDLE
	}
	col, rc := s.DescribeCol(int(columnNumber))
	if !rc.Succeeded() {
		return ret(rc)
	}
	if nameLengthPtr != nil {
		*nameLengthPtr = C.SQLSMALLINT(len(col.Name))
	}
	if dataTypePtr != nil {
		*dataTypePtr = C.SQLSMALLINT(col.SQLType)
	}
	if columnSizePtr != nil {
		*columnSizePtr = C.SQLULEN(col.Size)
	}
	if decimalDigitsPtr != nil {
		*decimalDigitsPtr = C.SQLSMALLINT(col.Digits)
	}
	if nullablePtr != nil {
		*nullablePtr = C.SQLSMALLINT(col.Nullable)
	}
	if putString(unsafe.Pointer(columnName), int(bufferLength), col.Name) {
		rc = s.Truncated(rc, "column name")
	}
	return ret(rc)
}

//export SQLColAttribute
func SQLColAttribute(statementHandle C.SQLHSTMT, columnNumber C.SQLUSMALLINT, fieldIdentifier C.SQLUSMALLINT,
	characterAttributePtr C.SQLPOINTER, bufferLength C.SQLSMALLINT, stringLengthPtr *C.SQLSMALLINT, numericAttributePtr *C.SQLLEN) C.SQLRETURN {
	s := stmtOf(statementHandle)
	if s == nil {
		return C.SQL_INVALID_HANDLE
	}
	a, rc := s.ColAttribute(int(columnNumber), uint16(fieldIdentifier))
	if !rc.Succeeded() {
		return ret(rc)
	}
	if !a.IsString {
		if numericAttributePtr != nil {
			*numericAttributePtr = C.SQLLEN(a.Num)
		}
		return ret(rc)
	}
	if stringLengthPtr != nil {
		*stringLengthPtr = C.SQLSMALLINT(len(a.Str))
	}
	if putString(unsafe.Pointer(characterAttributePtr), int(bufferLength), a.Str) {
		rc = s.Truncated(rc, "column attribute")
	}
	return ret(rc)
}

//export SQLTables
func SQLTables(statementHandle C.SQLHSTMT, catalogName *C.SQLUCHAR, nameLength1 C.SQLSMALLINT,
	schemaName *C.SQLUCHAR, nameLength2 C.SQLSMALLINT, tableName *C.SQLUCHAR, nameLength3 C.SQLSMALLINT,
	tableType *C.SQLUCHAR, nameLength4 C.SQLSMALLINT) C.SQLRETURN {
	s := stmtOf(statementHandle)
	if s == nil {
		return C.SQL_INVALID_HANDLE
	}
	return ret(s.Tables(context.Background(),
		goString(catalogName, int(nameLength1)),
		goString(schemaName, int(nameLength2)),
		goString(tableName, int(nameLength3)),
		goString(tableType, int(nameLength4))))
}

//export SQLColumns
func SQLColumns(statementHandle C.SQLHSTMT, catalogName *C.SQLUCHAR, nameLength1 C.SQLSMALLINT,
	schemaName *C.SQLUCHAR, nameLength2 C.SQLSMALLINT, tableName *C.SQLUCHAR, nameLength3 C.SQLSMALLINT,
	columnName *C.SQLUCHAR, nameLength4 C.SQLSMALLINT) C.SQLRETURN {
	s := stmtOf(statementHandle)
	if s == nil {
		return C.SQL_INVALID_HANDLE
	}
	return ret(s.Columns(context.Background(),
		goString(catalogName, int(nameLength1)),
		goString(schemaName, int(nameLength2)),
		goString(tableName, int(nameLength3)),
		goString(columnName, int(nameLength4))))
}

//export SQLCancel
func SQLCancel(statementHandle C.SQLHSTMT) C.SQLRETURN {
	s := stmtOf(statementHandle)
	if s == nil {
		return C.SQL_INVALID_HANDLE
	}
	return ret(s.Cancel(context.Background()))
}

//export SQLCloseCursor
func SQLCloseCursor(statementHandle C.SQLHSTMT) C.SQLRETURN {
	s := stmtOf(statementHandle)
	if s == nil {
		return C.SQL_INVALID_HANDLE
	}
	return ret(s.CloseCursor())
}

//export SQLSetStmtAttr
func SQLSetStmtAttr(statementHandle C.SQLHSTMT, attribute C.SQLINTEGER, valuePtr C.SQLPOINTER, stringLength C.SQLINTEGER) C.SQLRETURN {
	s := stmtOf(statementHandle)
	if s == nil {
		return C.SQL_INVALID_HANDLE
	}
	if attribute == C.SQL_ATTR_ROWS_FETCHED_PTR {
		return ret(s.SetRowsFetched((*uint64)(unsafe.Pointer(valuePtr))))
	}
	return ret(s.SetAttr(int32(attribute), int64(uintptr(unsafe.Pointer(valuePtr)))))
}

//export SQLGetStmtAttr
func SQLGetStmtAttr(statementHandle C.SQLHSTMT, attribute C.SQLINTEGER, valuePtr C.SQLPOINTER, bufferLength C.SQLINTEGER, stringLengthPtr *C.SQLINTEGER) C.SQLRETURN {
	s := stmtOf(statementHandle)
	if s == nil {
		return C.SQL_INVALID_HANDLE
	}
	v, rc := s.GetAttr(int32(attribute))
	if rc.Succeeded() && valuePtr != nil {
		*(*C.SQLULEN)(unsafe.Pointer(valuePtr)) = C.SQLULEN(v)
	}
	return ret(rc)
}

//export SQLMoreResults
func SQLMoreResults(statementHandle C.SQLHSTMT) C.SQLRETURN {
	s := stmtOf(statementHandle)
	if s == nil {
		return C.SQL_INVALID_HANDLE
	}
	return ret(s.MoreResults())
}

//export SQLGetDiagRec
func SQLGetDiagRec(handleType C.SQLSMALLINT, handle C.SQLHANDLE, recNumber C.SQLSMALLINT,
	sqlState *C.SQLUCHAR, nativeErrorPtr *C.SQLINTEGER, messageText *C.SQLUCHAR,
	bufferLength C.SQLSMALLINT, textLengthPtr *C.SQLSMALLINT) C.SQLRETURN {
	rec, rc := reg.Diag(handles.HandleType(handleType), handleOf(unsafe.Pointer(handle)), int(recNumber))
	if rc != handles.Success {
		return ret(rc)
	}
	putString(unsafe.Pointer(sqlState), 6, string(rec.State))
	if nativeErrorPtr != nil {
		*nativeErrorPtr = C.SQLINTEGER(rec.Native)
	}
	if textLengthPtr != nil {
		*textLengthPtr = C.SQLSMALLINT(len(rec.Message))
	}
	if putString(unsafe.Pointer(messageText), int(bufferLength), rec.Message) {
		return C.SQL_SUCCESS_WITH_INFO
	}
	return C.SQL_SUCCESS
}

func main() {}
