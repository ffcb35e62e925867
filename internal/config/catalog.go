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

package config

// DefaultCatalog is the local certificate name list used by autocomplete
// before falling back to AI suggestions.
var DefaultCatalog = []string{
	"정보처리기사", "정보처리산업기사", "정보처리기능사",
	"정보보안기사", "정보보안산업기사",
	"전자계산기조직응용기사", "정보통신기사", "정보통신산업기사",
	"빅데이터분석기사", "데이터분석준전문가(ADsP)", "데이터분석전문가(ADP)",
	"SQL개발자(SQLD)", "SQL전문가(SQLP)", "데이터아키텍처준전문가(DAsP)",
	"리눅스마스터 1급", "리눅스마스터 2급", "네트워크관리사 2급",
	"컴퓨터활용능력 1급", "컴퓨터활용능력 2급", "워드프로세서",
	"전기기사", "전기산업기사", "전기기능사", "전기공사기사",
	"소방설비기사(전기분야)", "소방설비기사(기계분야)", "소방안전관리자 1급",
	"산업안전기사", "산업안전산업기사", "건설안전기사",
	"건축기사", "건축산업기사", "토목기사", "건설기계설비기사",
	"일반기계기사", "기계설계산업기사", "공조냉동기계기사",
	"화공기사", "위험물산업기사", "위험물기능사",
	"대기환경기사", "수질환경기사", "폐기물처리기사",
	"품질경영기사", "산업위생관리기사", "가스기사",
	"전산회계 1급", "전산세무 2급", "재경관리사", "회계관리 1급",
	"한국사능력검정시험", "TOEIC", "TOEIC Speaking", "OPIc",
	"사회조사분석사 2급", "직업상담사 2급", "경영지도사",
	"한식조리기능사", "제과기능사", "제빵기능사", "바리스타 2급",
	"AWS Certified Solutions Architect", "정보시스템감리사",
}
