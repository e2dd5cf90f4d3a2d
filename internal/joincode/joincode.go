package joincode

import (
	"crypto/rand"
	"regexp"
	"strings"
)

// 혼동 글자(0/O/I/1/L) 제외 알파벳. 입력은 대소문자/하이픈 무시.
const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

const codeLength = 8

var codeRe = regexp.MustCompile(`^[ABCDEFGHJKMNPQRSTUVWXYZ23456789]{8}$`)

// Generate 조인 코드 생성 (정규형, 하이픈 없는 8글자).
// 256 % 31 잔여 구간의 바이트는 버린다 (모듈로 편향 방지)
func Generate() string {
	const cutoff = 256 - 256%len(alphabet)
	out := make([]byte, 0, codeLength)
	buf := make([]byte, codeLength)
	for {
		if _, err := rand.Read(buf); err != nil {
			// crypto/rand 실패는 런타임 환경 문제
			panic("joincode: crypto/rand unavailable: " + err.Error())
		}
		for _, b := range buf {
			if int(b) >= cutoff {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == codeLength {
				return string(out)
			}
		}
	}
}

// Normalize 사용자 입력 정규화 (대문자화, 하이픈/공백 제거)
func Normalize(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.ReplaceAll(code, "-", "")
	code = strings.ReplaceAll(code, " ", "")
	return code
}

// Valid 정규화 후 형식 검사
func Valid(code string) bool {
	return codeRe.MatchString(Normalize(code))
}

// Format 표시용 XXXX-XXXX 형태로 변환
func Format(code string) string {
	code = Normalize(code)
	if len(code) != codeLength {
		return code
	}
	return code[:4] + "-" + code[4:]
}
