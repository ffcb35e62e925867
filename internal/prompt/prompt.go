// Copyright 2025 CertHub API Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package prompt builds the generation prompts for certificate search and
// autocomplete.
//
// The search prompt fixes the markdown layout of the answer. The frontend
// splits the text on "### " headings and matches them against
// SectionHeadings, so the heading vocabulary and list/table syntax here are a
// wire contract.
package prompt

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/your-org/certhub-api/internal/domain"
)

// SectionHeadings is the fixed heading vocabulary, in output order
var SectionHeadings = []string{
	"개요",
	"시험 구성",
	"시험 일정 및 응시료",
	"최근 동향",
	"취득 방법",
	"합격률 및 합격 팁",
	"통계",
	"우대 현황",
}

// OfficialSite is where users are sent to confirm schedules and fees
const OfficialSite = "https://www.q-net.or.kr"

// BuildSearch assembles the certificate search prompt. When data holds
// Q-net results they are embedded verbatim and take priority for the
// schedule and fee section.
func BuildSearch(query string, data domain.AggregatedData, now time.Time) string {
	year := now.Year()
	var b strings.Builder

	fmt.Fprintf(&b, "당신은 한국 국가자격증 전문 상담가입니다. '%s' 자격증에 대해 수험생이 알아야 할 정보를 정리해 주세요.\n", query)
	fmt.Fprintf(&b, "오늘 날짜는 %s 입니다.\n\n", now.Format("2006-01-02"))

	if !data.IsEmpty() {
		encoded, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			encoded = []byte("{}")
		}
		b.WriteString("다음은 Q-net 공식 API에서 조회한 최신 데이터입니다:\n")
		b.WriteString("```json\n")
		b.Write(encoded)
		b.WriteString("\n```\n\n")
		b.WriteString("데이터 활용 규칙:\n")
		b.WriteString("- '시험 일정 및 응시료' 섹션은 위 데이터를 최우선으로 사용하세요.\n")
		fmt.Fprintf(&b, "- 데이터에 %d년 일정이 아직 없으면 %d년 일정을 기준으로 %d년 일정을 추정하고, 반드시 \"(예상)\"이라고 표기하세요.\n", year, year-1, year)
		b.WriteString("- 데이터에 있는 날짜와 금액은 바꾸지 말고 그대로 옮기세요.\n\n")
	} else {
		b.WriteString("이 자격증에 대한 공식 API 데이터를 찾지 못했습니다.\n")
		b.WriteString("- 일정과 응시료를 안내할 때 공식 발표된 연도인지 추정한 연도인지 명확히 밝히세요.\n")
		fmt.Fprintf(&b, "- %d년 정보가 확실하지 않으면 \"(예상)\"이라고 표기하고, 정확한 정보는 Q-net(%s) 또는 시행 기관 공식 사이트에서 확인하도록 안내하세요.\n\n", year, OfficialSite)
	}

	b.WriteString("출력 형식 (반드시 지켜야 합니다):\n")
	b.WriteString("- 각 주요 섹션은 아래 제목 중 하나로 시작하는 '### ' 마크다운 제목을 사용하세요. 순서도 그대로 따르세요.\n")
	for _, heading := range SectionHeadings {
		fmt.Fprintf(&b, "  ### %s\n", heading)
	}
	b.WriteString("- 목록은 반드시 '- '로 시작하세요.\n")
	b.WriteString("- 표는 '|' 구분자를 사용하는 마크다운 표 문법으로 작성하세요.\n")
	b.WriteString("- 섹션과 섹션 사이에는 빈 줄을 한 줄 넣으세요.\n")
	b.WriteString("- 제목 외의 다른 머리말이나 맺음말은 쓰지 마세요.\n")

	return b.String()
}

// BuildAutocomplete asks for up to limit official certificate names related
// to query, returned as a JSON array of strings.
func BuildAutocomplete(query string, limit int) string {
	return fmt.Sprintf(`'%s'(으)로 검색하는 사용자를 위해 관련된 한국 자격증의 공식 명칭을 최대 %d개 추천해 주세요.
실제로 존재하는 자격증만 포함하세요.
설명 없이 JSON 문자열 배열 하나만 출력하세요. 예: ["정보처리기사", "정보보안기사"]`, query, limit)
}
