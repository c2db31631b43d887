package security

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/md5"
	"crypto/rc4"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"

	"golang.org/x/crypto/hkdf"

	"github.com/wudi/pdfstudio/ir/raw"
)

var (
	// ErrInvalidPassword is returned when neither the user nor the owner
	// password check accepts the supplied password.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrUnsupportedEncryption covers non-Standard handlers and AES-256 (V5).
	ErrUnsupportedEncryption = errors.New("unsupported encryption")
)

type Permissions struct{ Print, Modify, Copy, ModifyAnnotations, FillForms, ExtractAccessible, Assemble, PrintHighQuality bool }

// AllPermissions grants every operation; owner-level restrictions are not
// part of this tool's protect flow.
func AllPermissions() Permissions {
	return Permissions{true, true, true, true, true, true, true, true}
}

// DataClass identifies the kind of payload being encrypted or decrypted.
type DataClass int

const (
	DataClassStream DataClass = iota
	DataClassString
)

type Handler interface {
	IsEncrypted() bool
	Authenticate(password string) error
	Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error)
	Encrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error)
	Permissions() Permissions
}

type HandlerBuilder struct {
	encryptDict *raw.DictObj
	fileID      []byte
}

func (b *HandlerBuilder) WithEncryptDict(d *raw.DictObj) *HandlerBuilder {
	b.encryptDict = d
	return b
}
func (b *HandlerBuilder) WithFileID(id []byte) *HandlerBuilder { b.fileID = id; return b }

func (b *HandlerBuilder) Build() (Handler, error) {
	if b.encryptDict == nil {
		return noEncryptionHandler{}, nil
	}
	if name, ok := b.encryptDict.NameValue("Filter"); ok && name != "Standard" {
		return nil, fmt.Errorf("%w: filter %s", ErrUnsupportedEncryption, name)
	}
	v, _ := b.encryptDict.IntValue("V")
	if v == 0 {
		v = 1
	}
	if v != 1 && v != 2 && v != 4 {
		return nil, fmt.Errorf("%w: V=%d", ErrUnsupportedEncryption, v)
	}
	r, ok := b.encryptDict.IntValue("R")
	if !ok {
		r = 2
	}
	if r < 2 || r > 4 {
		return nil, fmt.Errorf("%w: R=%d", ErrUnsupportedEncryption, r)
	}
	keyLen := 40
	if n, ok := b.encryptDict.IntValue("Length"); ok && n > 0 {
		keyLen = int(n)
	}
	if v >= 4 && keyLen < 128 {
		keyLen = 128
	}
	if keyLen%8 != 0 || keyLen < 40 || keyLen > 128 {
		return nil, fmt.Errorf("encryption length %d invalid", keyLen)
	}
	owner, _ := stringBytes(b.encryptDict, "O")
	user, _ := stringBytes(b.encryptDict, "U")
	pVal, _ := b.encryptDict.IntValue("P")
	encryptMeta := true
	if bv, ok := b.encryptDict.Lookup("EncryptMetadata"); ok {
		if flag, ok := bv.(raw.BoolObj); ok {
			encryptMeta = flag.V
		}
	}

	baseAlgo := algoRC4
	streamAlgo, stringAlgo := baseAlgo, baseAlgo
	if v == 4 {
		filters, err := parseCryptFilters(b.encryptDict)
		if err != nil {
			return nil, err
		}
		if streamAlgo, err = resolveCryptFilter(b.encryptDict, "StmF", filters); err != nil {
			return nil, err
		}
		if stringAlgo, err = resolveCryptFilter(b.encryptDict, "StrF", filters); err != nil {
			return nil, err
		}
	}
	return &standardHandler{
		r:           int(r),
		keyBytes:    keyLen / 8,
		owner:       owner,
		user:        user,
		p:           int32(pVal),
		fileID:      b.fileID,
		encryptMeta: encryptMeta,
		streamAlgo:  streamAlgo,
		stringAlgo:  stringAlgo,
	}, nil
}

type cryptAlgo int

const (
	algoNone cryptAlgo = iota
	algoRC4
	algoAES
)

type standardHandler struct {
	key         []byte
	r           int
	keyBytes    int
	owner       []byte
	user        []byte
	p           int32
	fileID      []byte
	encryptMeta bool
	authed      bool
	streamAlgo  cryptAlgo
	stringAlgo  cryptAlgo
	// ivSeed makes AES IVs a function of the key, object and payload.
	ivSeed []byte
}

func (h *standardHandler) IsEncrypted() bool { return true }

// Authenticate accepts either the user or the owner password.
func (h *standardHandler) Authenticate(password string) error {
	key := deriveKey([]byte(password), h.owner, h.p, h.fileID, h.keyBytes, h.r, h.encryptMeta)
	if checkUserPassword(key, h.user, h.fileID, h.r) {
		h.key, h.authed = key, true
		return nil
	}
	userPwd := recoverUserPassword([]byte(password), h.owner, h.keyBytes, h.r)
	key = deriveKey(userPwd, h.owner, h.p, h.fileID, h.keyBytes, h.r, h.encryptMeta)
	if checkUserPassword(key, h.user, h.fileID, h.r) {
		h.key, h.authed = key, true
		return nil
	}
	return ErrInvalidPassword
}

func (h *standardHandler) algoFor(class DataClass) cryptAlgo {
	if class == DataClassString {
		return h.stringAlgo
	}
	return h.streamAlgo
}

func (h *standardHandler) Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	if !h.authed {
		if err := h.Authenticate(""); err != nil {
			return nil, err
		}
	}
	algo := h.algoFor(class)
	if algo == algoNone || len(data) == 0 {
		return data, nil
	}
	key := objectKey(h.key, objNum, gen, algo == algoAES)
	if algo == algoAES {
		return aesDecrypt(key, data)
	}
	return rc4Crypt(key, data)
}

func (h *standardHandler) Encrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	if !h.authed {
		if err := h.Authenticate(""); err != nil {
			return nil, err
		}
	}
	algo := h.algoFor(class)
	if algo == algoNone {
		return data, nil
	}
	key := objectKey(h.key, objNum, gen, algo == algoAES)
	if algo == algoAES {
		iv, err := h.deriveIV(objNum, gen, class, data)
		if err != nil {
			return nil, err
		}
		return aesEncrypt(key, iv, data)
	}
	return rc4Crypt(key, data)
}

// deriveIV expands an HKDF over the file key so repeated saves of the same
// document produce identical ciphertext.
func (h *standardHandler) deriveIV(objNum, gen int, class DataClass, data []byte) ([]byte, error) {
	digest := sha256.Sum256(data)
	info := make([]byte, 0, 48)
	info = strconv.AppendInt(info, int64(objNum), 10)
	info = append(info, ' ')
	info = strconv.AppendInt(info, int64(gen), 10)
	info = append(info, ' ', byte('0'+class))
	info = append(info, digest[:]...)
	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, h.key, h.ivSeed, info), iv); err != nil {
		return nil, err
	}
	return iv, nil
}

func (h *standardHandler) Permissions() Permissions { return permissionsFromValue(h.p) }

type noEncryptionHandler struct{}

func (noEncryptionHandler) IsEncrypted() bool                  { return false }
func (noEncryptionHandler) Authenticate(password string) error { return nil }
func (noEncryptionHandler) Decrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Encrypt(objNum, gen int, data []byte, class DataClass) ([]byte, error) {
	return data, nil
}
func (noEncryptionHandler) Permissions() Permissions { return AllPermissions() }

// NoopHandler passes data through unchanged.
func NoopHandler() Handler { return noEncryptionHandler{} }

var passwordPadding = []byte{
	0x28, 0xBF, 0x4E, 0x5E, 0x4E, 0x75, 0x8A, 0x41,
	0x64, 0x00, 0x4E, 0x56, 0xFF, 0xFA, 0x01, 0x08,
	0x2E, 0x2E, 0x00, 0xB6, 0xD0, 0x68, 0x3E, 0x80,
	0x2F, 0x0C, 0xA9, 0xFE, 0x64, 0x53, 0x69, 0x7A,
}

func padPassword(pwd []byte) []byte {
	padded := make([]byte, 32)
	copy(padded, pwd)
	if len(pwd) < 32 {
		copy(padded[len(pwd):], passwordPadding[:32-len(pwd)])
	}
	return padded
}

// deriveKey is Algorithm 2 of ISO 32000-1 7.6.3.3.
func deriveKey(pwd, owner []byte, pVal int32, fileID []byte, keyLenBytes int, r int, encryptMeta bool) []byte {
	if keyLenBytes <= 0 {
		keyLenBytes = 5
	}
	if keyLenBytes > 16 {
		keyLenBytes = 16
	}
	data := make([]byte, 0, 32+len(owner)+8+len(fileID))
	data = append(data, padPassword(pwd)...)
	data = append(data, owner...)
	var pBuf [4]byte
	binary.LittleEndian.PutUint32(pBuf[:], uint32(pVal))
	data = append(data, pBuf[:]...)
	data = append(data, fileID...)
	if r >= 4 && !encryptMeta {
		data = append(data, 0xFF, 0xFF, 0xFF, 0xFF)
	}

	sum := md5.Sum(data)
	if r == 2 {
		return append([]byte(nil), sum[:5]...)
	}
	for i := 0; i < 50; i++ {
		sum = md5.Sum(sum[:keyLenBytes])
	}
	return append([]byte(nil), sum[:keyLenBytes]...)
}

// ownerKey is steps a-d of Algorithm 3.
func ownerKey(ownerPwd []byte, keyLenBytes, r int) []byte {
	sum := md5.Sum(padPassword(ownerPwd))
	if r == 2 {
		return sum[:5]
	}
	for i := 0; i < 50; i++ {
		sum = md5.Sum(sum[:])
	}
	return sum[:keyLenBytes]
}

func computeOwnerEntry(ownerPwd, userPwd []byte, keyLenBytes, r int) []byte {
	key := ownerKey(ownerPwd, keyLenBytes, r)
	out := rc4Simple(key, padPassword(userPwd))
	if r >= 3 {
		for i := 1; i <= 19; i++ {
			out = rc4Simple(xorKey(key, byte(i)), out)
		}
	}
	return out
}

// recoverUserPassword reverses the O entry with a candidate owner password.
func recoverUserPassword(ownerPwd, owner []byte, keyLenBytes, r int) []byte {
	if len(owner) < 32 {
		return nil
	}
	key := ownerKey(ownerPwd, keyLenBytes, r)
	out := append([]byte(nil), owner[:32]...)
	if r == 2 {
		return rc4Simple(key, out)
	}
	for i := 19; i >= 0; i-- {
		out = rc4Simple(xorKey(key, byte(i)), out)
	}
	return out
}

func computeUserEntry(key, fileID []byte, r int) []byte {
	if r == 2 {
		return rc4Simple(key, passwordPadding)
	}
	h := md5.Sum(append(append([]byte(nil), passwordPadding...), fileID...))
	val := h[:]
	for i := 0; i < 20; i++ {
		val = rc4Simple(xorKey(key, byte(i)), val)
	}
	return append(val, make([]byte, 16)...)
}

func checkUserPassword(key []byte, userEntry []byte, fileID []byte, r int) bool {
	if len(userEntry) < 16 {
		return false
	}
	expect := computeUserEntry(key, fileID, r)
	if r == 2 {
		return bytes.Equal(expect[:32], userEntry[:min(32, len(userEntry))])
	}
	return bytes.Equal(expect[:16], userEntry[:16])
}

func xorKey(key []byte, v byte) []byte {
	out := make([]byte, len(key))
	for i := range key {
		out[i] = key[i] ^ v
	}
	return out
}

// PermissionsValue builds the Standard security permissions flags for a document.
func PermissionsValue(p Permissions) int32 {
	val := int32(-4) // bits 1-2 must be 0
	for bit, allowed := range map[uint]bool{
		2: p.Print, 3: p.Modify, 4: p.Copy, 5: p.ModifyAnnotations,
		8: p.FillForms, 9: p.ExtractAccessible, 10: p.Assemble, 11: p.PrintHighQuality,
	} {
		if !allowed {
			val &^= 1 << bit
		}
	}
	return val
}

func permissionsFromValue(p int32) Permissions {
	return Permissions{
		Print:             p&0x4 != 0,
		Modify:            p&0x8 != 0,
		Copy:              p&0x10 != 0,
		ModifyAnnotations: p&0x20 != 0,
		FillForms:         p&0x100 != 0,
		ExtractAccessible: p&0x200 != 0,
		Assemble:          p&0x400 != 0,
		PrintHighQuality:  p&0x800 != 0,
	}
}

// EncryptionSetup is the output of BuildStandardEncryption: the dictionary to
// store under /Encrypt and a handler ready to encrypt objects.
type EncryptionSetup struct {
	Dict    *raw.DictObj
	Handler Handler
}

// BuildStandardEncryption constructs a V4/R4 AESV2 Standard security handler.
// An empty owner password falls back to the user password. ivSeed feeds the
// deterministic IV derivation.
func BuildStandardEncryption(userPwd, ownerPwd string, perms Permissions, fileID, ivSeed []byte) (*EncryptionSetup, error) {
	if ownerPwd == "" {
		ownerPwd = userPwd
	}
	const r, keyBytes = 4, 16
	oVal := computeOwnerEntry([]byte(ownerPwd), []byte(userPwd), keyBytes, r)
	pVal := PermissionsValue(perms)
	fileKey := deriveKey([]byte(userPwd), oVal, pVal, fileID, keyBytes, r, true)
	uVal := computeUserEntry(fileKey, fileID, r)

	stdCF := raw.Dict()
	stdCF.Put("Type", raw.NameLiteral("CryptFilter"))
	stdCF.Put("CFM", raw.NameLiteral("AESV2"))
	stdCF.Put("AuthEvent", raw.NameLiteral("DocOpen"))
	stdCF.Put("Length", raw.NumberInt(keyBytes))
	cf := raw.Dict()
	cf.Put("StdCF", stdCF)

	enc := raw.Dict()
	enc.Put("Filter", raw.NameLiteral("Standard"))
	enc.Put("V", raw.NumberInt(4))
	enc.Put("R", raw.NumberInt(r))
	enc.Put("Length", raw.NumberInt(keyBytes*8))
	enc.Put("CF", cf)
	enc.Put("StmF", raw.NameLiteral("StdCF"))
	enc.Put("StrF", raw.NameLiteral("StdCF"))
	enc.Put("O", raw.HexStr(oVal))
	enc.Put("U", raw.HexStr(uVal))
	enc.Put("P", raw.NumberInt(int64(pVal)))

	h := &standardHandler{
		key:         fileKey,
		r:           r,
		keyBytes:    keyBytes,
		owner:       oVal,
		user:        uVal,
		p:           pVal,
		fileID:      fileID,
		encryptMeta: true,
		authed:      true,
		streamAlgo:  algoAES,
		stringAlgo:  algoAES,
		ivSeed:      ivSeed,
	}
	return &EncryptionSetup{Dict: enc, Handler: h}, nil
}

func parseCryptFilters(dict *raw.DictObj) (map[string]cryptAlgo, error) {
	out := make(map[string]cryptAlgo)
	cfObj, ok := dict.Lookup("CF")
	if !ok {
		return out, nil
	}
	cfDict, ok := cfObj.(*raw.DictObj)
	if !ok {
		return nil, errors.New("CF must be a dictionary")
	}
	for _, name := range cfDict.SortedKeys() {
		entry, ok := cfDict.KV[name].(*raw.DictObj)
		if !ok {
			return nil, errors.New("crypt filter entry must be a dictionary")
		}
		algo := algoRC4
		if cfm, ok := entry.NameValue("CFM"); ok {
			switch cfm {
			case "V2":
				algo = algoRC4
			case "AESV2":
				algo = algoAES
			case "None":
				algo = algoNone
			default:
				return nil, fmt.Errorf("%w: crypt filter method %s", ErrUnsupportedEncryption, cfm)
			}
		}
		out[name] = algo
	}
	return out, nil
}

func resolveCryptFilter(dict *raw.DictObj, key string, filters map[string]cryptAlgo) (cryptAlgo, error) {
	name, _ := dict.NameValue(key)
	if name == "" || name == "Identity" {
		return algoNone, nil
	}
	if algo, ok := filters[name]; ok {
		return algo, nil
	}
	return algoNone, fmt.Errorf("crypt filter %s not defined", name)
}

func objectKey(fileKey []byte, objNum, gen int, useAES bool) []byte {
	key := append([]byte{}, fileKey...)
	key = append(key, byte(objNum), byte(objNum>>8), byte(objNum>>16), byte(gen), byte(gen>>8))
	if useAES {
		key = append(key, 0x73, 0x41, 0x6C, 0x54) // "sAlT"
	}
	hash := md5.Sum(key)
	n := len(fileKey) + 5
	if n > 16 {
		n = 16
	}
	return hash[:n]
}

func rc4Simple(key []byte, data []byte) []byte {
	out, _ := rc4Crypt(key, data)
	return out
}

func rc4Crypt(key []byte, data []byte) ([]byte, error) {
	c, err := rc4.NewCipher(key)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(data))
	c.XORKeyStream(out, data)
	return out, nil
}

// aesEncrypt prepends iv and applies PKCS#5 padding.
func aesEncrypt(key, iv, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padLen := aes.BlockSize - (len(data) % aes.BlockSize)
	plain := append(append([]byte(nil), data...), bytes.Repeat([]byte{byte(padLen)}, padLen)...)
	out := make([]byte, aes.BlockSize+len(plain))
	copy(out, iv)
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out[aes.BlockSize:], plain)
	return out, nil
}

func aesDecrypt(key []byte, data []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	if len(data) < aes.BlockSize {
		return nil, errors.New("aes ciphertext too short")
	}
	iv := data[:aes.BlockSize]
	ct := data[aes.BlockSize:]
	if len(ct)%aes.BlockSize != 0 {
		return nil, errors.New("aes ciphertext not multiple of blocksize")
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	if len(out) == 0 {
		return out, nil
	}
	pad := int(out[len(out)-1])
	if pad <= 0 || pad > aes.BlockSize || pad > len(out) {
		return nil, errors.New("invalid aes padding")
	}
	return out[:len(out)-pad], nil
}

func stringBytes(dict *raw.DictObj, key string) ([]byte, bool) {
	v, ok := dict.Lookup(key)
	if !ok {
		return nil, false
	}
	switch s := v.(type) {
	case raw.StringObj:
		return s.Bytes, true
	case raw.HexStringObj:
		return s.Bytes, true
	}
	return nil, false
}
